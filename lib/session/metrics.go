// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"math"
	"strconv"

	"github.com/bureau-foundation/edge-desktop/lib/event"
)

// Totals is the sum of transfer counters across identities.
type Totals struct {
	Up   int64
	Down int64
}

// AggregateMetrics sums the counters of every identity in ev.
// Identities without counters contribute nothing. It does not touch
// any Model.
func AggregateMetrics(ev event.MetricsEvent) Totals {
	var totals Totals
	for _, identity := range ev.Identities {
		if identity.Metrics == nil {
			continue
		}
		totals.Up += identity.Metrics.Up
		totals.Down += identity.Metrics.Down
	}
	return totals
}

var rateSuffixes = []string{"bps", "kbps", "mbps", "gbps", "tbps", "pbps"}

// FormatRate scales a counter by powers of 1024 while the scaled
// value still rounds to at least 1, and returns it with one decimal
// place and its unit suffix.
func FormatRate(value int64) (amount string, suffix string) {
	scaled := float64(value)
	index := 0
	for index < len(rateSuffixes)-1 && math.Round(scaled/1024) >= 1 {
		scaled /= 1024
		index++
	}
	return strconv.FormatFloat(scaled, 'f', 1, 64), rateSuffixes[index]
}
