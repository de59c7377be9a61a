/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspace provides disposable git clones of the repository being
// fixed. A Manager is configured with the GitHub token source and commit
// identity for the agent, and hands out Workspace handles that:
//   - Hold a fresh clone of the remote default branch in a temporary directory.
//   - Check out a fix branch, reusing it when it already exists on the remote.
//   - Write, remove and commit files, then push the branch back to origin.
//
// Callers acquire one workspace per ticket and Release it when done, whatever
// the outcome. Workspaces are never shared between tickets.
package workspace
