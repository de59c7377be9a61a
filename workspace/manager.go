/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const dirPrefix = "sonarfix-"

// Manager creates and removes workspaces for one GitHub identity.
type Manager struct {
	tokenSource oauth2.TokenSource
	identity    string
	email       string
	baseDir     string
	remoteURL   func(owner, repo string) string
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseDir places workspaces under dir instead of os.TempDir().
func WithBaseDir(dir string) Option {
	return func(m *Manager) {
		m.baseDir = dir
	}
}

// WithRemoteURL overrides how an owner/repo pair maps to a clone URL.
func WithRemoteURL(fn func(owner, repo string) string) Option {
	return func(m *Manager) {
		m.remoteURL = fn
	}
}

// New constructs a Manager. The token source must allow cloning and pushing
// to the target repository. Identity is used as the commit author name and,
// when it lacks a domain, as the local part of a GitHub noreply address.
func New(tokenSource oauth2.TokenSource, identity string, opts ...Option) (*Manager, error) {
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	email := identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@users.noreply.github.com", identity)
	}

	m := &Manager{
		tokenSource: tokenSource,
		identity:    identity,
		email:       email,
		baseDir:     os.TempDir(),
		remoteURL:   defaultRemoteURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Acquire clones the default branch of owner/repo into a fresh directory.
// A leftover directory from an earlier ticket whose release failed is removed
// first. Callers must Release the workspace when done.
func (m *Manager) Acquire(ctx context.Context, owner, repo string) (*Workspace, error) {
	switch {
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	}

	dir := filepath.Join(m.baseDir, fmt.Sprintf("%s%s-%s-%d", dirPrefix, owner, repo, os.Getpid()))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("removing stale workspace %s: %w", dir, err)
	}

	auth, err := m.authForRemote()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	remote := m.remoteURL(owner, repo)
	clog.FromContext(ctx).Infof("Cloning repository %s into %s", remote, dir)

	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          remote,
		SingleBranch: true,
		Auth:         auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	return &Workspace{
		manager:       m,
		path:          dir,
		repo:          r,
		head:          head.Hash(),
		defaultBranch: head.Name().Short(),
	}, nil
}

// Release deletes the workspace directory. Failures are logged, not returned,
// so that cleanup never changes a ticket's outcome.
func (m *Manager) Release(ctx context.Context, ws *Workspace) {
	if ws == nil || ws.path == "" {
		return
	}
	if err := os.RemoveAll(ws.path); err != nil {
		clog.FromContext(ctx).With("path", ws.path).Warnf("Failed to remove workspace: %v", err)
		return
	}
	clog.FromContext(ctx).Debugf("Removed workspace %s", ws.path)
	ws.repo = nil
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

func defaultRemoteURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}
