/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patchgen

import (
	"strings"
	"text/template"

	"chainguard.dev/sonarfix/sonarqube"
)

const systemPrompt = `You are a senior software engineer resolving static analysis findings reported by SonarQube.

Make the smallest change that resolves each listed issue. Keep the existing behavior, public API and formatting of the file. Do not add commentary.

Respond with the complete updated file content and nothing else: no explanations and no markdown code fences.`

var userPromptTemplate = template.Must(template.New("user").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`Fix the following SonarQube issues in {{.Path}}:

{{range $i, $issue := .Issues}}{{inc $i}}. {{$issue}}
{{end}}
Current content of {{.Path}}:
<file>
{{.Content}}
</file>

Return the complete corrected content of {{.Path}}.
`))

type promptData struct {
	Path    string
	Content string
	Issues  []sonarqube.Issue
}

func renderUserPrompt(path, content string, issues []sonarqube.Issue) (string, error) {
	var sb strings.Builder
	if err := userPromptTemplate.Execute(&sb, promptData{
		Path:    path,
		Content: content,
		Issues:  issues,
	}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
