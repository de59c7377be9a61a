/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package controller drives tickets from discovery to a pull request.
//
// Each poll searches the tracker for open SonarQube tickets and processes
// the ones it has not seen yet, one at a time:
//
//	Discovered -> In Progress -> Fixed | Failed
//
// A ticket ends in exactly one of Fixed or Failed, and either way a single
// comment describing the outcome is posted back to it. A ticket is handled
// at most once per process lifetime; restarting the process handles open
// tickets again, which is safe because the fix branch and its pull request
// are reused.
package controller
