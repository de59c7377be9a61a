/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package jira is a minimal Jira Cloud REST v3 client covering what the agent
// needs: searching tickets, commenting on them and moving them between
// statuses.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chainguard.dev/sonarfix/jira/adf"
	"chainguard.dev/sonarfix/retry"
	"github.com/chainguard-dev/clog"
)

// ErrNoTransition is returned when a ticket has no transition to the
// requested status.
var ErrNoTransition = errors.New("no matching transition")

// searchFields are the ticket fields requested from search.
var searchFields = []string{"summary", "status", "labels", "description"}

// Ticket is a read-only snapshot of a Jira issue.
type Ticket struct {
	Key         string
	Summary     string
	Status      string
	Labels      []string
	Description *adf.Node
}

// Transition is a workflow transition available on a ticket.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   struct {
		Name string `json:"name"`
	} `json:"to"`
}

// Client talks to one Jira site.
type Client struct {
	baseURL    *url.URL
	email      string
	token      string
	httpClient *http.Client
	retry      retry.Config
	maxResults int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig overrides the backoff used for 429 and 5xx responses.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithMaxResults caps the number of tickets a single search returns.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		c.maxResults = n
	}
}

// New creates a Client for the Jira site at baseURL, authenticating with an
// account email and API token.
func New(baseURL, email, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		email:      email,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
		maxResults: 50,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return c, nil
}

// BrowseURL returns the human-facing URL of a ticket.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL.JoinPath("browse", key).String()
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields"`
	MaxResults int      `json:"maxResults"`
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
			Labels      []string        `json:"labels"`
			Description json.RawMessage `json:"description"`
		} `json:"fields"`
	} `json:"issues"`
}

// Search returns the tickets matching jql.
func (c *Client) Search(ctx context.Context, jql string) ([]Ticket, error) {
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "rest/api/3/search/jql", searchRequest{
		JQL:        jql,
		Fields:     searchFields,
		MaxResults: c.maxResults,
	}, &resp); err != nil {
		return nil, fmt.Errorf("searching tickets: %w", err)
	}

	tickets := make([]Ticket, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		tickets = append(tickets, Ticket{
			Key:         issue.Key,
			Summary:     issue.Fields.Summary,
			Status:      issue.Fields.Status.Name,
			Labels:      issue.Fields.Labels,
			Description: decodeDescription(ctx, issue.Key, issue.Fields.Description),
		})
	}
	return tickets, nil
}

// decodeDescription decodes one ticket's ADF description. A malformed
// description is logged and dropped so that it cannot fail the whole page.
func decodeDescription(ctx context.Context, key string, raw json.RawMessage) *adf.Node {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var doc adf.Node
	if err := json.Unmarshal(raw, &doc); err != nil {
		clog.FromContext(ctx).With("ticket", key).Warnf("Ignoring malformed description: %v", err)
		return nil
	}
	return &doc
}

// AddComment posts a comment with the given ADF body.
func (c *Client) AddComment(ctx context.Context, key string, body *adf.Node) error {
	if err := c.do(ctx, http.MethodPost, "rest/api/3/issue/"+url.PathEscape(key)+"/comment", map[string]any{
		"body": body,
	}, nil); err != nil {
		return fmt.Errorf("commenting on %s: %w", key, err)
	}
	return nil
}

// Transitions lists the transitions currently available on a ticket.
func (c *Client) Transitions(ctx context.Context, key string) ([]Transition, error) {
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, "rest/api/3/issue/"+url.PathEscape(key)+"/transitions", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing transitions of %s: %w", key, err)
	}
	return resp.Transitions, nil
}

// DoTransition executes the transition with the given id.
func (c *Client) DoTransition(ctx context.Context, key, id string) error {
	if err := c.do(ctx, http.MethodPost, "rest/api/3/issue/"+url.PathEscape(key)+"/transitions", map[string]any{
		"transition": map[string]string{"id": id},
	}, nil); err != nil {
		return fmt.Errorf("transitioning %s: %w", key, err)
	}
	return nil
}

// TransitionTo moves a ticket to the named status, matching either the
// transition name or its target status case-insensitively. It returns
// ErrNoTransition when the workflow offers no such transition.
func (c *Client) TransitionTo(ctx context.Context, key, status string) error {
	transitions, err := c.Transitions(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range transitions {
		if strings.EqualFold(t.Name, status) || strings.EqualFold(t.To.Name, status) {
			return c.DoTransition(ctx, key, t.ID)
		}
	}
	return fmt.Errorf("%s to %q: %w", key, status, ErrNoTransition)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	endpoint := c.baseURL.JoinPath(path).String()

	body, err := retry.Do(ctx, c.retry, method+" "+path, retry.IsRetryableStatusError, func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.email, c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	clog.FromContext(ctx).Debugf("%s %s: %d bytes", method, path, len(body))
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
