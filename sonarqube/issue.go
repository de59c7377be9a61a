/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sonarqube models the issues a SonarQube quality gate reports and
// parses them out of the Jira tickets that announce a failed gate.
package sonarqube

import (
	"fmt"
	"strconv"
)

// Kind classifies a SonarQube issue. Its value is a stable token; String
// returns the display name.
type Kind string

const (
	KindBug             Kind = "Bug"
	KindVulnerability   Kind = "Vulnerability"
	KindCodeSmell       Kind = "CodeSmell"
	KindSecurityHotspot Kind = "SecurityHotspot"
)

// Kinds lists every Kind in report order.
var Kinds = []Kind{KindBug, KindVulnerability, KindCodeSmell, KindSecurityHotspot}

// String returns the name SonarQube shows for the kind.
func (k Kind) String() string {
	switch k {
	case KindCodeSmell:
		return "Code Smell"
	case KindSecurityHotspot:
		return "Security Hotspot"
	default:
		return string(k)
	}
}

// Plural returns the plural form used in headings and summaries.
func (k Kind) Plural() string {
	switch k {
	case KindVulnerability:
		return "Vulnerabilities"
	default:
		return k.String() + "s"
	}
}

// UnknownLine is the Line value of an issue reported as "N/A".
const UnknownLine = 0

// Issue is a single parsed defect.
type Issue struct {
	Kind     Kind   `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
}

// LineString renders the line number, or "N/A" when it is unknown.
func (i Issue) LineString() string {
	if i.Line == UnknownLine {
		return "N/A"
	}
	return strconv.Itoa(i.Line)
}

// String renders the issue as "[SEVERITY] KIND: MESSAGE (Line N)".
func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s (Line %s)", i.Severity, i.Kind, i.Message, i.LineString())
}

// Report holds the issues of one ticket grouped by kind.
type Report struct {
	Bugs             []Issue `json:"bugs"`
	Vulnerabilities  []Issue `json:"vulnerabilities"`
	CodeSmells       []Issue `json:"codeSmells"`
	SecurityHotspots []Issue `json:"securityHotspots"`
}

// All flattens the report in kind order.
func (r Report) All() []Issue {
	all := make([]Issue, 0, r.Len())
	all = append(all, r.Bugs...)
	all = append(all, r.Vulnerabilities...)
	all = append(all, r.CodeSmells...)
	all = append(all, r.SecurityHotspots...)
	return all
}

// Len returns the total number of issues.
func (r Report) Len() int {
	return len(r.Bugs) + len(r.Vulnerabilities) + len(r.CodeSmells) + len(r.SecurityHotspots)
}

func (r *Report) add(issue Issue) {
	switch issue.Kind {
	case KindBug:
		r.Bugs = append(r.Bugs, issue)
	case KindVulnerability:
		r.Vulnerabilities = append(r.Vulnerabilities, issue)
	case KindCodeSmell:
		r.CodeSmells = append(r.CodeSmells, issue)
	case KindSecurityHotspot:
		r.SecurityHotspots = append(r.SecurityHotspots, issue)
	}
}
