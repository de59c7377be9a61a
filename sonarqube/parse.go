/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sonarqube

import (
	"regexp"
	"strconv"
	"strings"

	"chainguard.dev/sonarfix/jira/adf"
)

// issueLine matches "[SEVERITY] MESSAGE - FILE (Line N)" and "(Line N/A)".
// The message is greedy so the last " - " separates it from the file.
var issueLine = regexp.MustCompile(`^\[([^\]]+)\]\s*(.+)\s+-\s+(\S.*?)\s*\(Line\s+([1-9][0-9]*|N/A)\)$`)

// sectionMarkers maps heading substrings to the kind of the list that follows.
var sectionMarkers = []struct {
	marker string
	kind   Kind
}{
	{"Bugs", KindBug},
	{"Vulnerabilities", KindVulnerability},
	{"Code Smells", KindCodeSmell},
	{"Security Hotspots", KindSecurityHotspot},
}

// ParseDescription extracts the issues listed in a quality-gate ticket
// description. Parsing is best effort: missing or malformed content yields an
// empty Report, and list items that do not match the issue format are dropped.
func ParseDescription(doc *adf.Node) Report {
	var report Report
	if doc == nil || doc.Type != adf.TypeDoc {
		return report
	}

	var section Kind
	for _, block := range doc.Content {
		if block == nil {
			continue
		}
		switch block.Type {
		case adf.TypeHeading:
			section = sectionFor(block.PlainText())

		case adf.TypeBulletList:
			if section == "" {
				continue
			}
			for _, item := range block.Content {
				if item == nil || item.Type != adf.TypeListItem {
					continue
				}
				text := item.FirstChild(adf.TypeParagraph).PlainText()
				if issue, ok := ParseLine(section, text); ok {
					report.add(issue)
				}
			}
		}
	}
	return report
}

func sectionFor(heading string) Kind {
	for _, s := range sectionMarkers {
		if strings.Contains(heading, s.marker) {
			return s.kind
		}
	}
	return ""
}

// ParseLine parses a single list item. It reports false when text does not
// follow the issue format.
func ParseLine(kind Kind, text string) (Issue, bool) {
	m := issueLine.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Issue{}, false
	}

	line := UnknownLine
	if m[4] != "N/A" {
		n, err := strconv.Atoi(m[4])
		if err != nil {
			return Issue{}, false
		}
		line = n
	}

	return Issue{
		Kind:     kind,
		Severity: m[1],
		Message:  strings.TrimSpace(m[2]),
		File:     m[3],
		Line:     line,
	}, true
}
