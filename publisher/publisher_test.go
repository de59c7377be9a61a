/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chainguard.dev/sonarfix/fixplan"
	"chainguard.dev/sonarfix/jira"
	"chainguard.dev/sonarfix/sonarqube"
	"chainguard.dev/sonarfix/workspace"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}

// initTestRepo creates an origin repository on master holding src/A.java.
func initTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "A.java"), []byte("class A {\n  int x = 1;\n}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add("src/A.java"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	return dir
}

// fakeGitHub serves the REST and GraphQL endpoints the publisher uses.
type fakeGitHub struct {
	mu      sync.Mutex
	openPR  string
	created []github.NewPullRequest
	labels  []string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/app":
		io.WriteString(w, `{"name": "app", "default_branch": "master"}`)

	case r.Method == http.MethodPost && r.URL.Path == "/graphql":
		nodes := "[]"
		if f.openPR != "" {
			nodes = `[{"number": 4, "url": "` + f.openPR + `"}]`
		}
		io.WriteString(w, `{"data": {"repository": {"pullRequests": {"nodes": `+nodes+`}}}}`)

	case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/app/pulls":
		var req github.NewPullRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.created = append(f.created, req)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"number": 5, "html_url": "https://github.com/acme/app/pull/5"}`)

	case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/app/issues/5/labels":
		var labels []string
		if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.labels = append(f.labels, labels...)
		io.WriteString(w, `[]`)

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

type fixture struct {
	gh        *fakeGitHub
	publisher *Publisher
	mgr       *workspace.Manager
	origin    string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	gh := &fakeGitHub{}
	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)

	client := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	client.BaseURL = base

	opts = append([]Option{WithGraphQLClient(githubv4.NewEnterpriseClient(srv.URL+"/graphql", srv.Client()))}, opts...)
	p, err := New(client, "acme", "app", func(key string) string {
		return "https://acme.atlassian.net/browse/" + key
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	origin := initTestRepo(t)
	mgr, err := workspace.New(staticTokenSource(""), "sonarfix-test",
		workspace.WithBaseDir(t.TempDir()),
		workspace.WithRemoteURL(func(string, string) string { return origin }))
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}

	return &fixture{gh: gh, publisher: p, mgr: mgr, origin: origin}
}

func (f *fixture) publish(t *testing.T, plan []fixplan.Entry) (string, error) {
	t.Helper()
	ctx := context.Background()
	ws, err := f.mgr.Acquire(ctx, "acme", "app")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer f.mgr.Release(ctx, ws)
	return f.publisher.Publish(ctx, plan, ws, ticket)
}

var (
	ticket = jira.Ticket{
		Key:     "SCRUM-7",
		Summary: "SonarQube Quality Gate Failed - app - abc1234",
	}

	issue = sonarqube.Issue{
		Kind:     sonarqube.KindBug,
		Severity: "MAJOR",
		Message:  "Make x final",
		File:     "src/A.java",
		Line:     2,
	}
)

func updateA(content string) fixplan.Entry {
	return fixplan.Entry{
		File:    "src/A.java",
		Action:  fixplan.ActionUpdate,
		Content: content,
		Issues:  []sonarqube.Issue{issue},
		Reason:  "Fix 1 Bug",
	}
}

func TestPublishCreatesPullRequest(t *testing.T) {
	f := newFixture(t, WithLabels("sonarqube"))

	got, err := f.publish(t, []fixplan.Entry{updateA("class A {\n  final int x = 1;\n}\n")})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if want := "https://github.com/acme/app/pull/5"; got != want {
		t.Errorf("Publish() = %q, want %q", got, want)
	}

	if len(f.gh.created) != 1 {
		t.Fatalf("created %d PRs, want 1", len(f.gh.created))
	}
	pr := f.gh.created[0]
	if got, want := pr.GetTitle(), "Fix: SonarQube Quality Gate Failed - app - abc1234"; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}
	if got, want := pr.GetHead(), "fix/scrum-7-sonarqube-issues"; got != want {
		t.Errorf("head = %q, want %q", got, want)
	}
	if got, want := pr.GetBase(), "master"; got != want {
		t.Errorf("base = %q, want %q", got, want)
	}
	for _, want := range []string{
		"[SCRUM-7](https://acme.atlassian.net/browse/SCRUM-7)",
		"`src/A.java` (update, +1/-1)",
		"Fix 1 Bug",
		"- [MAJOR] Bug: Make x final (Line 2)",
	} {
		if !strings.Contains(pr.GetBody(), want) {
			t.Errorf("body missing %q:\n%s", want, pr.GetBody())
		}
	}
	if diff := cmp.Diff([]string{"sonarqube"}, f.gh.labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	origin, err := git.PlainOpen(f.origin)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	ref, err := origin.Reference(plumbing.NewBranchReferenceName("fix/scrum-7-sonarqube-issues"), true)
	if err != nil {
		t.Fatalf("branch not pushed: %v", err)
	}
	commit, err := origin.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	want := "fix(SCRUM-7): resolve SonarQube issues\n\nJira: https://acme.atlassian.net/browse/SCRUM-7\n\n- src/A.java: Fix 1 Bug\n"
	if diff := cmp.Diff(want, commit.Message); diff != "" {
		t.Errorf("commit message mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishNothingToCommit(t *testing.T) {
	f := newFixture(t)

	// Writing back identical content leaves the tree clean.
	_, err := f.publish(t, []fixplan.Entry{updateA("class A {\n  int x = 1;\n}\n")})
	if !errors.Is(err, workspace.ErrNothingToCommit) {
		t.Fatalf("Publish() = %v, want ErrNothingToCommit", err)
	}
	if len(f.gh.created) != 0 {
		t.Errorf("created %d PRs, want 0", len(f.gh.created))
	}

	origin, err := git.PlainOpen(f.origin)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	if _, err := origin.Reference(plumbing.NewBranchReferenceName("fix/scrum-7-sonarqube-issues"), true); err == nil {
		t.Error("branch pushed for an empty commit")
	}
}

func TestPublishReusesOpenPullRequest(t *testing.T) {
	f := newFixture(t)

	if _, err := f.publish(t, []fixplan.Entry{updateA("class A {\n  final int x = 1;\n}\n")}); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	f.gh.openPR = "https://github.com/acme/app/pull/4"

	got, err := f.publish(t, []fixplan.Entry{updateA("class A {\n  final int x = 2;\n}\n")})
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if got != f.gh.openPR {
		t.Errorf("Publish() = %q, want existing %q", got, f.gh.openPR)
	}
	if len(f.gh.created) != 1 {
		t.Errorf("created %d PRs, want 1", len(f.gh.created))
	}
}

func TestPublishSameFixOnReusedBranch(t *testing.T) {
	f := newFixture(t)
	plan := []fixplan.Entry{updateA("class A {\n  final int x = 1;\n}\n")}

	if _, err := f.publish(t, plan); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	// The branch already holds the fix but its pull request was closed.
	if _, err := f.publish(t, plan); !errors.Is(err, workspace.ErrNothingToCommit) {
		t.Fatalf("Publish() without open PR = %v, want ErrNothingToCommit", err)
	}

	f.gh.openPR = "https://github.com/acme/app/pull/4"
	got, err := f.publish(t, plan)
	if err != nil {
		t.Fatalf("Publish() with open PR: %v", err)
	}
	if got != f.gh.openPR {
		t.Errorf("Publish() = %q, want existing %q", got, f.gh.openPR)
	}
	if len(f.gh.created) != 1 {
		t.Errorf("created %d PRs, want 1", len(f.gh.created))
	}
}

func TestPublishAppliesCreateAndDelete(t *testing.T) {
	f := newFixture(t)

	_, err := f.publish(t, []fixplan.Entry{{
		File:    "src/B.java",
		Action:  fixplan.ActionCreate,
		Content: "class B {}\n",
		Reason:  "Fix SonarQube issues",
	}, {
		File:   "src/A.java",
		Action: fixplan.ActionDelete,
		Reason: "Fix SonarQube issues",
	}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	body := f.gh.created[0].GetBody()
	for _, want := range []string{"`src/B.java` (create, +1/-0)", "`src/A.java` (delete, +0/-3)"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestPublishUnknownAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.publish(t, []fixplan.Entry{{File: "src/A.java", Action: "rename"}})
	if err == nil || !strings.Contains(err.Error(), `unknown action "rename"`) {
		t.Errorf("Publish() = %v, want unknown action error", err)
	}
}

func TestBranchName(t *testing.T) {
	if got, want := BranchName("SCRUM-7"), "fix/scrum-7-sonarqube-issues"; got != want {
		t.Errorf("BranchName() = %q, want %q", got, want)
	}
}

func TestDiffStats(t *testing.T) {
	diff := `diff --git a/src/A.java b/src/A.java
index 1111111..2222222 100644
--- a/src/A.java
+++ b/src/A.java
@@ -1,3 +1,4 @@
 class A {
-  int x = 1;
+  final int x = 1;
+  final int y = 2;
 }
`
	got, err := DiffStats(diff)
	if err != nil {
		t.Fatalf("DiffStats: %v", err)
	}
	want := map[string]FileStat{"src/A.java": {Added: 2, Removed: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiffStats() mismatch (-want +got):\n%s", diff)
	}

	empty, err := DiffStats("")
	if err != nil || len(empty) != 0 {
		t.Errorf("DiffStats(\"\") = %v, %v", empty, err)
	}
}

func TestNewValidation(t *testing.T) {
	browse := func(string) string { return "" }
	client := github.NewClient(nil)
	tests := []struct {
		name   string
		client *github.Client
		owner  string
		repo   string
		browse func(string) string
	}{
		{name: "nil client", owner: "o", repo: "r", browse: browse},
		{name: "no owner", client: client, repo: "r", browse: browse},
		{name: "no repo", client: client, owner: "o", browse: browse},
		{name: "no browse", client: client, owner: "o", repo: "r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.client, tt.owner, tt.repo, tt.browse); err == nil {
				t.Error("New() = nil error")
			}
		})
	}
}
