/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command sonarfix watches Jira for SonarQube quality gate tickets and opens
// pull requests that fix the reported issues.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/sonarfix/agents/metrics"
	"chainguard.dev/sonarfix/agents/patchgen"
	"chainguard.dev/sonarfix/controller"
	"chainguard.dev/sonarfix/fixplan"
	"chainguard.dev/sonarfix/jira"
	"chainguard.dev/sonarfix/publisher"
	"chainguard.dev/sonarfix/workspace"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/chainguard-dev/terraform-infra-common/pkg/profiler"
	"github.com/google/go-github/v84/github"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go httpmetrics.ScrapeDiskUsage(ctx)
	profiler.SetupProfiler()
	defer httpmetrics.SetupTracer(ctx)()

	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		clog.FatalContextf(ctx, "loading config: %v", err)
	}
	owner, repo, _ := cfg.Repository()

	var exporter *otelprom.Exporter
	if cfg.MetricsPort > 0 {
		if exporter, err = setupMeterProvider(ctx); err != nil {
			clog.FatalContextf(ctx, "setting up metrics: %v", err)
		}
	}

	ctrl, err := newController(ctx, cfg, owner, repo)
	if err != nil {
		clog.FatalContextf(ctx, "creating controller: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if exporter != nil {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsPort)
		})
	}
	g.Go(func() error {
		clog.InfoContextf(ctx, "Starting sonarfix for %s on %s/%s with model %s", cfg.JiraProjectKey, owner, repo, cfg.ModelName)
		return ctrl.Run(ctx)
	})
	if err := g.Wait(); err != nil {
		clog.FatalContextf(ctx, "sonarfix failed: %v", err)
	}
}

func newController(ctx context.Context, cfg *config, owner, repo string) (*controller.Controller, error) {
	tracker, err := jira.New(cfg.JiraURL, cfg.JiraEmail, cfg.JiraAPIToken)
	if err != nil {
		return nil, fmt.Errorf("creating jira client: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	workspaces, err := workspace.New(ts, cfg.GitIdentity)
	if err != nil {
		return nil, fmt.Errorf("creating workspace manager: %w", err)
	}

	gen, err := patchgen.New(ctx, cfg.ModelName, cfg.ModelAPIKey,
		patchgen.WithAttributeEnricher(metrics.TicketEnricher))
	if err != nil {
		return nil, fmt.Errorf("creating patch generator: %w", err)
	}
	planner, err := fixplan.New(gen)
	if err != nil {
		return nil, fmt.Errorf("creating planner: %w", err)
	}

	pub, err := publisher.New(gh, owner, repo, tracker.BrowseURL,
		publisher.WithLabels(cfg.PullRequestLabels()...))
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	return controller.New(cfg.JiraProjectKey, owner, repo, controller.Deps{
		Tracker:    tracker,
		Workspaces: workspaces,
		Planner:    planner,
		Publisher:  pub,
	},
		controller.WithLabels(cfg.Labels()...),
		controller.WithInProgressStatus(cfg.InProgressStatus),
		controller.WithInterval(cfg.Interval()),
	)
}

// setupMeterProvider exports otel metrics, such as the token counters,
// through the default prometheus registry.
func setupMeterProvider(ctx context.Context) (*otelprom.Exporter, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("creating otel prometheus exporter: %w", err)
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))
	clog.InfoContextf(ctx, "Exporting otel metrics to prometheus")
	return exporter, nil
}

// serveMetrics serves /metrics on port until ctx is cancelled.
func serveMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.WarnContextf(ctx, "shutting down metrics server: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Serving metrics on port %d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
