/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/sonarfix/jira/adf"
	"chainguard.dev/sonarfix/retry"
	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", "bot@example.com", "s3cr3t", WithRetryConfig(retry.Config{
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func checkAuth(t *testing.T, r *http.Request) {
	t.Helper()
	user, pass, ok := r.BasicAuth()
	if !ok || user != "bot@example.com" || pass != "s3cr3t" {
		t.Errorf("basic auth = (%q, %q, %v)", user, pass, ok)
	}
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkAuth(t, r)
		if r.Method != http.MethodPost || r.URL.Path != "/rest/api/3/search/jql" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.JQL != `project = "SCRUM"` {
			t.Errorf("jql = %q", req.JQL)
		}
		if diff := cmp.Diff(searchFields, req.Fields); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
		if req.MaxResults != 50 {
			t.Errorf("maxResults = %d, want 50", req.MaxResults)
		}

		io.WriteString(w, `{"issues": [{
			"key": "SCRUM-7",
			"fields": {
				"summary": "SonarQube Quality Gate Failed - app - abc1234",
				"status": {"name": "To Do"},
				"labels": ["sonarqube", "auto-generated"],
				"description": {"type": "doc", "version": 1, "content": [
					{"type": "heading", "content": [{"type": "text", "text": "Bugs (1)"}]}
				]}
			}
		}, {
			"key": "SCRUM-8",
			"fields": {"summary": "no description", "status": {"name": "To Do"}, "description": null}
		}]}`)
	}))

	got, err := c.Search(context.Background(), `project = "SCRUM"`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []Ticket{{
		Key:     "SCRUM-7",
		Summary: "SonarQube Quality Gate Failed - app - abc1234",
		Status:  "To Do",
		Labels:  []string{"sonarqube", "auto-generated"},
		Description: &adf.Node{Type: adf.TypeDoc, Version: 1, Content: []*adf.Node{
			{Type: adf.TypeHeading, Content: []*adf.Node{adf.Text("Bugs (1)")}},
		}},
	}, {
		Key:     "SCRUM-8",
		Summary: "no description",
		Status:  "To Do",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchMalformedDescription(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"issues": [{
			"key": "SCRUM-7",
			"fields": {
				"summary": "good",
				"status": {"name": "To Do"},
				"description": {"type": "doc", "version": 1, "content": []}
			}
		}, {
			"key": "SCRUM-8",
			"fields": {
				"summary": "broken",
				"status": {"name": "To Do"},
				"description": {"type": "doc", "version": "1", "content": "oops"}
			}
		}]}`)
	}))

	got, err := c.Search(context.Background(), "project = SCRUM")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []Ticket{{
		Key:         "SCRUM-7",
		Summary:     "good",
		Status:      "To Do",
		Description: &adf.Node{Type: adf.TypeDoc, Version: 1, Content: []*adf.Node{}},
	}, {
		Key:     "SCRUM-8",
		Summary: "broken",
		Status:  "To Do",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"issues": []}`)
	}))

	got, err := c.Search(context.Background(), "project = X")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(Search()) = %d, want 0", len(got))
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestSearchClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"errorMessages":["bad jql"]}`, http.StatusBadRequest)
	}))

	_, err := c.Search(context.Background(), "garbage")
	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Search() err = %v, want 400 StatusError", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestAddComment(t *testing.T) {
	var got struct {
		Body *adf.Node `json:"body"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkAuth(t, r)
		if r.Method != http.MethodPost || r.URL.Path != "/rest/api/3/issue/SCRUM-7/comment" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": "10000"}`)
	}))

	body := adf.Doc(adf.Paragraph(adf.Text("Automated fix created: https://github.com/acme/app/pull/1")))
	if err := c.AddComment(context.Background(), "SCRUM-7", body); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if diff := cmp.Diff(body, got.Body); diff != "" {
		t.Errorf("comment body mismatch (-want +got):\n%s", diff)
	}
}

func TestTransitionTo(t *testing.T) {
	var executed string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, `{"transitions": [
				{"id": "11", "name": "Start work", "to": {"name": "In Progress"}},
				{"id": "31", "name": "Done", "to": {"name": "Done"}}
			]}`)
		case http.MethodPost:
			var req struct {
				Transition struct {
					ID string `json:"id"`
				} `json:"transition"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			executed = req.Transition.ID
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	if err := c.TransitionTo(context.Background(), "SCRUM-7", "in progress"); err != nil {
		t.Fatalf("TransitionTo: %v", err)
	}
	if executed != "11" {
		t.Errorf("executed transition %q, want %q", executed, "11")
	}

	executed = ""
	err := c.TransitionTo(context.Background(), "SCRUM-7", "Blocked")
	if !errors.Is(err, ErrNoTransition) {
		t.Errorf("TransitionTo(Blocked) = %v, want ErrNoTransition", err)
	}
	if executed != "" {
		t.Errorf("unexpected transition %q executed", executed)
	}
}

func TestBrowseURL(t *testing.T) {
	c, err := New("https://acme.atlassian.net/", "a", "b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := c.BrowseURL("SCRUM-7"), "https://acme.atlassian.net/browse/SCRUM-7"; got != want {
		t.Errorf("BrowseURL() = %q, want %q", got, want)
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New("acme.atlassian.net", "a", "b"); err == nil {
		t.Error("New() = nil error for relative url")
	}
}

func TestOpenTicketsJQL(t *testing.T) {
	got := OpenTicketsJQL("SCRUM", []string{"sonarqube", "auto-generated"})
	want := `project = "SCRUM" AND labels = "sonarqube" AND labels = "auto-generated" AND status != "Done" AND status != "Closed" ORDER BY created ASC`
	if got != want {
		t.Errorf("OpenTicketsJQL() =\n%s\nwant\n%s", got, want)
	}
}
