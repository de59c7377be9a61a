/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/sonarfix/fixplan"
	"chainguard.dev/sonarfix/jira"
	"chainguard.dev/sonarfix/workspace"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// BranchName returns the fix branch for a ticket.
func BranchName(ticketKey string) string {
	return fmt.Sprintf("fix/%s-sonarqube-issues", strings.ToLower(ticketKey))
}

// CommitMessage returns the message of the fix commit for a ticket.
func CommitMessage(ticketKey, ticketURL string, plan []fixplan.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fix(%s): resolve SonarQube issues\n\n", ticketKey)
	fmt.Fprintf(&sb, "Jira: %s\n", ticketURL)
	if len(plan) > 0 {
		sb.WriteString("\n")
	}
	for _, e := range plan {
		fmt.Fprintf(&sb, "- %s: %s\n", e.File, e.Reason)
	}
	return sb.String()
}

// Publisher opens pull requests against one repository.
type Publisher struct {
	client    *github.Client
	gql       *githubv4.Client
	owner     string
	repo      string
	browseURL func(key string) string
	labels    []string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithGraphQLClient overrides the client used to look up open pull requests.
func WithGraphQLClient(gql *githubv4.Client) Option {
	return func(p *Publisher) {
		p.gql = gql
	}
}

// WithLabels applies the given labels to every pull request created.
func WithLabels(labels ...string) Option {
	return func(p *Publisher) {
		p.labels = labels
	}
}

// New creates a Publisher for owner/repo. browseURL maps a ticket key to the
// link used in commit messages and pull request bodies.
func New(client *github.Client, owner, repo string, browseURL func(string) string, opts ...Option) (*Publisher, error) {
	switch {
	case client == nil:
		return nil, errors.New("github client cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	case browseURL == nil:
		return nil, errors.New("browse url func cannot be nil")
	}

	p := &Publisher{
		client:    client,
		owner:     owner,
		repo:      repo,
		browseURL: browseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.gql == nil {
		p.gql = githubv4.NewClient(client.Client())
	}
	return p, nil
}

// Publish applies plan to ws on the ticket's fix branch, commits and pushes
// it, and returns the URL of the pull request carrying the fix. A plan that
// changes nothing fails with workspace.ErrNothingToCommit before anything
// is pushed, unless the branch already exists with an open pull request.
func (p *Publisher) Publish(ctx context.Context, plan []fixplan.Entry, ws *workspace.Workspace, ticket jira.Ticket) (string, error) {
	branch := BranchName(ticket.Key)
	log := clog.FromContext(ctx).With("branch", branch)

	repository, _, err := p.client.Repositories.Get(ctx, p.owner, p.repo)
	if err != nil {
		return "", fmt.Errorf("getting repository: %w", err)
	}
	base := repository.GetDefaultBranch()
	if base == "" {
		base = ws.DefaultBranch()
	}

	reused, err := ws.CheckoutBranch(ctx, branch)
	if err != nil {
		return "", fmt.Errorf("creating branch %s: %w", branch, err)
	}

	for _, e := range plan {
		if err := apply(ws, e); err != nil {
			return "", err
		}
	}

	ticketURL := p.browseURL(ticket.Key)
	hash, err := ws.CommitAll(CommitMessage(ticket.Key, ticketURL, plan))
	if err != nil {
		// A reused branch may already carry this exact fix, in which case
		// its open pull request is the result.
		if reused && errors.Is(err, workspace.ErrNothingToCommit) {
			url, lookupErr := p.findOpenPR(ctx, branch)
			if lookupErr != nil {
				return "", lookupErr
			}
			if url != "" {
				log.Infof("Branch already carries the fix, using existing PR %s", url)
				return url, nil
			}
		}
		return "", fmt.Errorf("committing fix for %s: %w", ticket.Key, err)
	}
	log.With("commit", hash.String()).Infof("Committed %d file changes", len(plan))

	if err := ws.Push(ctx, branch); err != nil {
		return "", fmt.Errorf("pushing %s: %w", branch, err)
	}

	if reused {
		url, err := p.findOpenPR(ctx, branch)
		if err != nil {
			return "", err
		}
		if url != "" {
			log.Infof("Pushed to existing PR %s", url)
			return url, nil
		}
	}

	diff, err := ws.Diff(hash)
	if err != nil {
		return "", fmt.Errorf("diffing commit: %w", err)
	}
	stats, err := DiffStats(diff)
	if err != nil {
		// The counts are decoration; the PR is still worth opening.
		log.Warnf("Failed to parse commit diff: %v", err)
	}

	body, err := renderBody(ticket, ticketURL, plan, stats)
	if err != nil {
		return "", fmt.Errorf("executing body template: %w", err)
	}

	log.Infof("Creating new PR with head %s and base %s", branch, base)
	pr, _, err := p.client.PullRequests.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
		Title: github.Ptr("Fix: " + ticket.Summary),
		Body:  github.Ptr(body),
		Head:  github.Ptr(branch),
		Base:  github.Ptr(base),
	})
	if err != nil {
		return "", fmt.Errorf("creating pull request: %w", err)
	}

	if len(p.labels) > 0 {
		if _, _, err := p.client.Issues.AddLabelsToIssue(ctx, p.owner, p.repo, pr.GetNumber(), p.labels); err != nil {
			log.Warnf("Failed to label PR #%d: %v", pr.GetNumber(), err)
		}
	}

	log.Infof("Created PR #%d: %s", pr.GetNumber(), pr.GetHTMLURL())
	return pr.GetHTMLURL(), nil
}

func apply(ws *workspace.Workspace, e fixplan.Entry) error {
	switch e.Action {
	case fixplan.ActionUpdate, fixplan.ActionCreate:
		if err := ws.WriteFile(e.File, e.Content); err != nil {
			return fmt.Errorf("applying %s to %s: %w", e.Action, e.File, err)
		}
	case fixplan.ActionDelete:
		if err := ws.RemoveFile(e.File); err != nil {
			return fmt.Errorf("applying %s to %s: %w", e.Action, e.File, err)
		}
	default:
		return fmt.Errorf("unknown action %q for %s", e.Action, e.File)
	}
	return nil
}

// findOpenPR returns the URL of the open pull request whose head is branch,
// or "" when there is none.
func (p *Publisher) findOpenPR(ctx context.Context, branch string) (string, error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number int
					Url    string
				}
			} `graphql:"pullRequests(headRefName: $headRef, states: [OPEN], first: 1)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	variables := map[string]any{
		"owner":   githubv4.String(p.owner),
		"repo":    githubv4.String(p.repo),
		"headRef": githubv4.String(branch),
	}
	if err := p.gql.Query(ctx, &query, variables); err != nil {
		return "", fmt.Errorf("querying pull request: %w", err)
	}
	if nodes := query.Repository.PullRequests.Nodes; len(nodes) > 0 {
		return nodes[0].Url, nil
	}
	return "", nil
}
