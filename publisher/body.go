/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"strings"
	"text/template"

	"chainguard.dev/sonarfix/fixplan"
	"chainguard.dev/sonarfix/jira"
	"chainguard.dev/sonarfix/sonarqube"
	"github.com/waigani/diffparser"
)

// FileStat counts the lines a commit changed in one file.
type FileStat struct {
	Added   int
	Removed int
}

// DiffStats counts added and removed lines per file of a unified diff.
// Deleted files are keyed by their original name.
func DiffStats(diff string) (map[string]FileStat, error) {
	stats := make(map[string]FileStat)
	if strings.TrimSpace(diff) == "" {
		return stats, nil
	}
	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return stats, err
	}
	for _, f := range parsed.Files {
		name := f.NewName
		if f.Mode == diffparser.DELETED || name == "" {
			name = f.OrigName
		}
		var st FileStat
		for _, h := range f.Hunks {
			for _, l := range h.WholeRange.Lines {
				switch l.Mode {
				case diffparser.ADDED:
					st.Added++
				case diffparser.REMOVED:
					st.Removed++
				}
			}
		}
		stats[name] = st
	}
	return stats, nil
}

var bodyTemplate = template.Must(template.New("body").Parse(`Automated fix for [{{.Key}}]({{.TicketURL}}): {{.Summary}}

This pull request resolves the SonarQube issues reported on the ticket. Please review the changes before merging.

## Changed files
{{range .Files}}
### ` + "`{{.File}}`" + ` ({{.Action}}{{with .Stat}}, +{{.Added}}/-{{.Removed}}{{end}})

{{.Reason}}
{{range .Issues}}
- {{.}}{{end}}
{{end}}
---
Jira ticket: {{.TicketURL}}
`))

type bodyFile struct {
	File   string
	Action fixplan.Action
	Reason string
	Issues []sonarqube.Issue
	Stat   *FileStat
}

type bodyData struct {
	Key       string
	Summary   string
	TicketURL string
	Files     []bodyFile
}

func renderBody(ticket jira.Ticket, ticketURL string, plan []fixplan.Entry, stats map[string]FileStat) (string, error) {
	data := bodyData{
		Key:       ticket.Key,
		Summary:   ticket.Summary,
		TicketURL: ticketURL,
	}
	for _, e := range plan {
		f := bodyFile{
			File:   e.File,
			Action: e.Action,
			Reason: e.Reason,
			Issues: e.Issues,
		}
		if st, ok := stats[e.File]; ok {
			f.Stat = &st
		}
		data.Files = append(data.Files, f)
	}

	var sb strings.Builder
	if err := bodyTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
