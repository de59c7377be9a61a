/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publisher turns a fix plan into a branch, a commit and a GitHub
// pull request.
//
// Publishing is not transactional. A failing step aborts the rest, and work
// already done (most notably a pushed branch) stays in place so that a
// later run, or a human, can pick it up. The branch name is derived from the
// ticket key, so later runs reuse the branch and, when a pull request for it
// is still open, return that pull request instead of opening another.
package publisher
