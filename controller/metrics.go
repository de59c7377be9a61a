/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeFixed  = "fixed"
	OutcomeFailed = "failed"
)

var (
	ticketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonarfix_tickets_total",
			Help: "Tickets processed, by terminal outcome",
		},
		[]string{"outcome"},
	)

	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonarfix_polls_total",
			Help: "Poll passes against the tracker, by result",
		},
		[]string{"result"},
	)
)
