/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package jira

import (
	"strconv"
	"strings"
)

// ClosedStatuses are the statuses excluded from open-ticket queries.
var ClosedStatuses = []string{"Done", "Closed"}

// OpenTicketsJQL selects the open tickets of a project that carry every one
// of labels.
func OpenTicketsJQL(project string, labels []string) string {
	clauses := []string{"project = " + quote(project)}
	for _, l := range labels {
		clauses = append(clauses, "labels = "+quote(l))
	}
	for _, s := range ClosedStatuses {
		clauses = append(clauses, "status != "+quote(s))
	}
	return strings.Join(clauses, " AND ") + " ORDER BY created ASC"
}

func quote(s string) string {
	return strconv.Quote(s)
}
