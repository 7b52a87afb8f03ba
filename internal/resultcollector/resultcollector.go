// Package resultcollector formats a query's top-k results in TREC run
// format and captures the per-query timing the driver reports alongside
// them.
package resultcollector

import (
	"fmt"
	"strings"
	"time"

	"github.com/impactrank/impactrank/internal/accumulator"
)

// Hit is one per-query outcome ready for formatting and reporting.
type Hit struct {
	QueryID           string
	QueryText         string
	Results           []accumulator.Result
	PostingsProcessed uint64
	ElapsedNanos      int64
}

// FormatTREC renders results as TREC run-format lines:
//
//	<query_id> Q0 <primary_key> <rank> <score> <tag>
//
// rank is 1-based.
func FormatTREC(queryID string, results []accumulator.Result, tag string) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%s Q0 %s %d %d %s\n", queryID, r.PrimaryKey, i+1, r.Score, tag)
	}
	return b.String()
}

// Timer measures the wall-clock span the spec defines as "just before
// parse to just after sort": call Start before handing the query text to
// the processor and Stop immediately after the processor returns.
type Timer struct {
	start time.Time
}

// Start begins timing.
func (t *Timer) Start() { t.start = time.Now() }

// Stop returns the elapsed time in nanoseconds since Start.
func (t *Timer) Stop() int64 { return time.Since(t.start).Nanoseconds() }
