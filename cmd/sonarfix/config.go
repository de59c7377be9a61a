/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type config struct {
	JiraURL        string `env:"JIRA_URL"`
	JiraEmail      string `env:"JIRA_EMAIL"`
	JiraAPIToken   string `env:"JIRA_API_TOKEN"`
	JiraProjectKey string `env:"JIRA_PROJECT_KEY"`

	GitHubToken      string `env:"GITHUB_TOKEN"`
	GitHubRepository string `env:"GITHUB_REPOSITORY"`

	ModelAPIKey string `env:"MODEL_API_KEY"`
	ModelName   string `env:"MODEL_NAME,default=claude-sonnet-4-5"`

	// Milliseconds between polls.
	PollInterval     int    `env:"POLL_INTERVAL,default=60000"`
	JiraLabels       string `env:"JIRA_LABELS,default=sonarqube,auto-generated"`
	InProgressStatus string `env:"IN_PROGRESS_STATUS,default=In Progress"`
	GitIdentity      string `env:"GIT_IDENTITY,default=sonarfix-bot"`
	PRLabels         string `env:"PR_LABELS"`

	MetricsPort int `env:"METRICS_PORT,default=2112"`
}

// loadConfig reads the configuration from lookuper and validates it.
func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*config, error) {
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing required variable at once, followed by
// any malformed value.
func (c *config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"JIRA_URL", c.JiraURL},
		{"JIRA_EMAIL", c.JiraEmail},
		{"JIRA_API_TOKEN", c.JiraAPIToken},
		{"JIRA_PROJECT_KEY", c.JiraProjectKey},
		{"GITHUB_TOKEN", c.GitHubToken},
		{"GITHUB_REPOSITORY", c.GitHubRepository},
		{"MODEL_API_KEY", c.ModelAPIKey},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var errs []error
	if _, _, err := c.Repository(); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %d", c.PollInterval))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("METRICS_PORT out of range: %d", c.MetricsPort))
	}
	return errors.Join(errs...)
}

// Repository splits GITHUB_REPOSITORY into owner and name.
func (c *config) Repository() (string, string, error) {
	owner, repo, ok := strings.Cut(c.GitHubRepository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("GITHUB_REPOSITORY must be owner/repo, got %q", c.GitHubRepository)
	}
	return owner, repo, nil
}

func (c *config) Interval() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

func (c *config) Labels() []string {
	return splitList(c.JiraLabels)
}

func (c *config) PullRequestLabels() []string {
	return splitList(c.PRLabels)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
