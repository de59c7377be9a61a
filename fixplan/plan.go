/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fixplan turns the issues of a ticket into per-file changes by
// asking a patch generator for the corrected content of each affected file.
package fixplan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chainguard.dev/sonarfix/agents/patchgen"
	"chainguard.dev/sonarfix/sonarqube"
	"github.com/chainguard-dev/clog"
)

// Action is the change an Entry makes to its file.
type Action string

const (
	ActionUpdate Action = "update"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Entry is one file-level change.
type Entry struct {
	File    string
	Action  Action
	Content string
	Issues  []sonarqube.Issue
	Reason  string
}

// Group is the set of issues reported against one file.
type Group struct {
	File   string
	Issues []sonarqube.Issue
}

// GroupByFile partitions issues by file. Groups appear in the order their
// file is first seen and keep the input order of their issues.
func GroupByFile(issues []sonarqube.Issue) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, issue := range issues {
		i, ok := index[issue.File]
		if !ok {
			i = len(groups)
			index[issue.File] = i
			groups = append(groups, Group{File: issue.File})
		}
		groups[i].Issues = append(groups[i].Issues, issue)
	}
	return groups
}

// Reason summarizes the kinds of issues fixed, e.g. "Fix 2 Bugs, 1 Vulnerability".
func Reason(issues []sonarqube.Issue) string {
	counts := make(map[sonarqube.Kind]int, len(sonarqube.Kinds))
	for _, issue := range issues {
		counts[issue.Kind]++
	}
	parts := make([]string, 0, len(sonarqube.Kinds))
	for _, kind := range sonarqube.Kinds {
		switch n := counts[kind]; n {
		case 0:
		case 1:
			parts = append(parts, fmt.Sprintf("1 %s", kind))
		default:
			parts = append(parts, fmt.Sprintf("%d %s", n, kind.Plural()))
		}
	}
	if len(parts) == 0 {
		return "Fix SonarQube issues"
	}
	return "Fix " + strings.Join(parts, ", ")
}

// Planner builds fix plans.
type Planner struct {
	gen patchgen.Generator
}

// New creates a Planner that obtains new file content from gen.
func New(gen patchgen.Generator) (*Planner, error) {
	if gen == nil {
		return nil, errors.New("generator cannot be nil")
	}
	return &Planner{gen: gen}, nil
}

// Plan produces one update Entry per file of the report whose patch could be
// generated. Files that cannot be read, whose patch fails, or whose patch
// changes nothing are logged and left out; the rest are still planned.
func (p *Planner) Plan(ctx context.Context, report sonarqube.Report, root string) []Entry {
	log := clog.FromContext(ctx)

	groups := GroupByFile(report.All())
	log.With("issues", report.Len()).
		With("files", len(groups)).
		Info("Planning fixes")

	var entries []Entry
	for _, g := range groups {
		glog := log.With("file", g.File).With("issues", len(g.Issues))

		current, err := readFile(root, g.File)
		if err != nil {
			glog.Warnf("Skipping file, cannot read it: %v", err)
			continue
		}

		patched, err := p.gen.Generate(ctx, g.File, current, g.Issues)
		if err != nil {
			glog.Warnf("Skipping file, patch generation failed: %v", err)
			continue
		}
		if patched == current {
			glog.Info("Skipping file, patch made no changes")
			continue
		}

		entries = append(entries, Entry{
			File:    g.File,
			Action:  ActionUpdate,
			Content: patched,
			Issues:  g.Issues,
			Reason:  Reason(g.Issues),
		})
	}

	log.With("entries", len(entries)).Info("Planned fixes")
	return entries
}

func readFile(root, path string) (string, error) {
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes workspace", path)
	}
	data, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
