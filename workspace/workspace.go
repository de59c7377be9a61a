/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNothingToCommit is returned by CommitAll when the working tree has no
// changes.
var ErrNothingToCommit = errors.New("nothing to commit")

// Workspace is a clone owned by a single ticket.
type Workspace struct {
	manager       *Manager
	path          string
	repo          *git.Repository
	head          plumbing.Hash
	defaultBranch string
	branch        string
}

// Path returns the absolute path of the working tree.
func (w *Workspace) Path() string {
	return w.path
}

// Repo returns the underlying git repository.
func (w *Workspace) Repo() *git.Repository {
	return w.repo
}

// HeadSHA returns the commit the default branch pointed at when cloned.
func (w *Workspace) HeadSHA() string {
	return w.head.String()
}

// DefaultBranch returns the branch checked out by the clone.
func (w *Workspace) DefaultBranch() string {
	return w.defaultBranch
}

// Branch returns the branch checked out by CheckoutBranch, if any.
func (w *Workspace) Branch() string {
	return w.branch
}

// CheckoutBranch checks out the named branch. When origin already has the
// branch its tip is fetched and reused; otherwise the branch starts at the
// cloned head. It reports whether an existing remote branch was reused.
func (w *Workspace) CheckoutBranch(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, errors.New("branch name cannot be empty")
	}
	log := clog.FromContext(ctx).With("branch", name)

	auth, err := w.manager.authForRemote()
	if err != nil {
		return false, fmt.Errorf("getting token: %w", err)
	}

	remote, err := w.repo.Remote("origin")
	if err != nil {
		return false, fmt.Errorf("getting remote: %w", err)
	}
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return false, fmt.Errorf("listing remote refs: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	start := w.head
	reused := false
	for _, ref := range refs {
		if ref.Name() != branchRef {
			continue
		}
		remoteRef := plumbing.NewRemoteReferenceName("origin", name)
		if err := w.repo.FetchContext(ctx, &git.FetchOptions{
			RefSpecs: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+%s:%s", branchRef, remoteRef))},
			Auth:     auth,
		}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return false, fmt.Errorf("fetching branch %s: %w", name, err)
		}
		start = ref.Hash()
		reused = true
		break
	}

	if err := w.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, start)); err != nil {
		return false, fmt.Errorf("setting branch reference: %w", err)
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return false, fmt.Errorf("checking out branch: %w", err)
	}
	w.branch = name

	if reused {
		log.Infof("Reusing existing branch at %s", start)
	} else {
		log.Infof("Created branch at %s", start)
	}
	return reused, nil
}

// resolve maps a repository-relative path to an absolute one, rejecting
// paths that would leave the working tree.
func (w *Workspace) resolve(path string) (string, error) {
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes workspace", path)
	}
	return filepath.Join(w.path, path), nil
}

// ReadFile returns the content of a repository-relative path.
func (w *Workspace) ReadFile(path string) (string, error) {
	full, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content to a repository-relative path, creating parent
// directories as needed and keeping the mode of an existing file.
func (w *Workspace) WriteFile(path, content string) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(full); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// RemoveFile deletes a repository-relative path.
func (w *Workspace) RemoveFile(path string) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// CommitAll stages every change in the working tree and commits it as the
// manager's identity. It returns ErrNothingToCommit for a clean tree.
func (w *Workspace) CommitAll(message string) (plumbing.Hash, error) {
	if message == "" {
		return plumbing.ZeroHash, errors.New("commit message cannot be empty")
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("staging changes: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting worktree status: %w", err)
	}
	if status.IsClean() {
		return plumbing.ZeroHash, ErrNothingToCommit
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  w.manager.identity,
			Email: w.manager.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("committing: %w", err)
	}
	return hash, nil
}

// Push pushes the named local branch to origin.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	log := clog.FromContext(ctx)

	auth, err := w.manager.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	log.Infof("Pushing %s", refSpec)

	if err := w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch already up to date")
			return nil
		}
		return fmt.Errorf("pushing: %w", err)
	}
	return nil
}

// Diff returns the unified diff of a commit against its first parent.
func (w *Workspace) Diff(hash plumbing.Hash) (string, error) {
	commit, err := w.repo.CommitObject(hash)
	if err != nil {
		return "", fmt.Errorf("getting commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("getting tree: %w", err)
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", fmt.Errorf("getting parent: %w", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return "", fmt.Errorf("getting parent tree: %w", err)
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return "", fmt.Errorf("diffing trees: %w", err)
	}
	patch, err := changes.Patch()
	if err != nil {
		return "", fmt.Errorf("building patch: %w", err)
	}
	return patch.String(), nil
}
