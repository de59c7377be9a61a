/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/sonarfix/agents/metrics"
	"chainguard.dev/sonarfix/fixplan"
	"chainguard.dev/sonarfix/jira"
	"chainguard.dev/sonarfix/jira/adf"
	"chainguard.dev/sonarfix/sonarqube"
	"chainguard.dev/sonarfix/workspace"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracker is the subset of the Jira client the controller uses.
type Tracker interface {
	Search(ctx context.Context, jql string) ([]jira.Ticket, error)
	AddComment(ctx context.Context, key string, body *adf.Node) error
	TransitionTo(ctx context.Context, key, status string) error
}

// Workspaces hands out clones of the target repository.
type Workspaces interface {
	Acquire(ctx context.Context, owner, repo string) (*workspace.Workspace, error)
	Release(ctx context.Context, ws *workspace.Workspace)
}

// Planner turns a report into per-file changes.
type Planner interface {
	Plan(ctx context.Context, report sonarqube.Report, root string) []fixplan.Entry
}

// Publisher turns a plan into a pull request.
type Publisher interface {
	Publish(ctx context.Context, plan []fixplan.Entry, ws *workspace.Workspace, ticket jira.Ticket) (string, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Tracker    Tracker
	Workspaces Workspaces
	Planner    Planner
	Publisher  Publisher
}

// Controller polls the tracker and processes new tickets sequentially.
type Controller struct {
	Deps

	project          string
	owner            string
	repo             string
	labels           []string
	inProgressStatus string
	interval         time.Duration
	tracer           oteltrace.Tracer

	processed map[string]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLabels sets the labels a ticket must carry to be picked up.
func WithLabels(labels ...string) Option {
	return func(c *Controller) {
		c.labels = labels
	}
}

// WithInProgressStatus sets the status tickets move to when picked up.
func WithInProgressStatus(status string) Option {
	return func(c *Controller) {
		c.inProgressStatus = status
	}
}

// WithInterval sets the time between polls.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.interval = d
	}
}

// WithTracerProvider sets the provider of the per-ticket spans. The global
// provider is used by default.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(c *Controller) {
		c.tracer = newTracer(tp)
	}
}

func newTracer(tp oteltrace.TracerProvider) oteltrace.Tracer {
	return tp.Tracer("chainguard.dev/sonarfix/controller",
		oteltrace.WithInstrumentationVersion("1.0.0"))
}

// New creates a Controller for tickets of project, fixed in owner/repo.
func New(project, owner, repo string, deps Deps, opts ...Option) (*Controller, error) {
	switch {
	case project == "":
		return nil, errors.New("project cannot be empty")
	case owner == "" || repo == "":
		return nil, errors.New("repository owner and name cannot be empty")
	case deps.Tracker == nil, deps.Workspaces == nil, deps.Planner == nil, deps.Publisher == nil:
		return nil, errors.New("all dependencies must be set")
	}

	c := &Controller{
		Deps:             deps,
		project:          project,
		owner:            owner,
		repo:             repo,
		labels:           []string{"sonarqube", "auto-generated"},
		inProgressStatus: "In Progress",
		interval:         time.Minute,
		tracer:           newTracer(otel.GetTracerProvider()),
		processed:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", c.interval)
	}
	return c, nil
}

// Processed reports whether key has already been handled in this process.
func (c *Controller) Processed(key string) bool {
	_, ok := c.processed[key]
	return ok
}

// Run polls once immediately and then once per interval until ctx is
// cancelled. A slow pass delays the next one; passes never overlap.
func (c *Controller) Run(ctx context.Context) error {
	log := clog.FromContext(ctx)
	log.Infof("Polling project %s every %v", c.project, c.interval)

	c.Poll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping controller")
			return nil
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

// Poll runs one pass: it searches for open tickets and processes each one
// that has not been processed yet.
func (c *Controller) Poll(ctx context.Context) {
	log := clog.FromContext(ctx)

	tickets, err := c.Tracker.Search(ctx, jira.OpenTicketsJQL(c.project, c.labels))
	if err != nil {
		pollsTotal.WithLabelValues("error").Inc()
		log.Errorf("Failed to poll tickets: %v", err)
		return
	}
	pollsTotal.WithLabelValues("success").Inc()

	var pending []jira.Ticket
	for _, t := range tickets {
		if !c.Processed(t.Key) {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		log.Debug("No new tickets")
		return
	}
	log.Infof("Found %d new tickets", len(pending))

	for _, t := range pending {
		if ctx.Err() != nil {
			return
		}
		c.Process(ctx, t)
	}
}

// Process takes one ticket through the pipeline and reports the outcome on
// the ticket. It never returns an error: failures become a comment.
func (c *Controller) Process(ctx context.Context, ticket jira.Ticket) {
	c.processed[ticket.Key] = struct{}{}

	ctx = metrics.WithTicket(ctx, ticket.Key)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("ticket", ticket.Key))
	log := clog.FromContext(ctx)

	ctx, span := c.tracer.Start(ctx, "sonarfix.process_ticket",
		oteltrace.WithAttributes(attribute.String("ticket", ticket.Key)))
	defer span.End()

	log.Infof("Processing %q", ticket.Summary)
	c.markInProgress(ctx, ticket.Key)

	url, err := c.fix(ctx, ticket)
	if err != nil {
		ticketsTotal.WithLabelValues(OutcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("Failed to fix ticket: %v", err)
		c.comment(ctx, ticket.Key, adf.Doc(adf.Paragraph(
			adf.Text("Failed to create automated fix: "+err.Error()),
		)))
		return
	}

	ticketsTotal.WithLabelValues(OutcomeFixed).Inc()
	span.SetAttributes(attribute.String("pull_request", url))
	log.Infof("Fixed ticket with %s", url)
	c.comment(ctx, ticket.Key, adf.Doc(adf.Paragraph(
		adf.Text("Automated fix created: "),
		adf.Link(url, url),
	)))
}

func (c *Controller) fix(ctx context.Context, ticket jira.Ticket) (string, error) {
	report := sonarqube.ParseDescription(ticket.Description)
	clog.FromContext(ctx).With("issues", report.Len()).Info("Parsed ticket description")

	ws, err := c.Workspaces.Acquire(ctx, c.owner, c.repo)
	if err != nil {
		return "", fmt.Errorf("acquiring workspace: %w", err)
	}
	defer c.Workspaces.Release(ctx, ws)

	plan := c.Planner.Plan(ctx, report, ws.Path())
	return c.Publisher.Publish(ctx, plan, ws, ticket)
}

// markInProgress moves the ticket to the in-progress status. Failing to do
// so does not stop processing.
func (c *Controller) markInProgress(ctx context.Context, key string) {
	if c.inProgressStatus == "" {
		return
	}
	log := clog.FromContext(ctx)
	if err := c.Tracker.TransitionTo(ctx, key, c.inProgressStatus); err != nil {
		if errors.Is(err, jira.ErrNoTransition) {
			log.Warnf("No transition to %q, leaving status unchanged", c.inProgressStatus)
			return
		}
		log.Warnf("Failed to transition ticket: %v", err)
	}
}

func (c *Controller) comment(ctx context.Context, key string, body *adf.Node) {
	if err := c.Tracker.AddComment(ctx, key, body); err != nil {
		clog.FromContext(ctx).Errorf("Failed to comment on ticket: %v", err)
	}
}
