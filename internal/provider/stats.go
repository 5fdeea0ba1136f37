// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// PERIODS
// =============================================================================

// Period is a cost-accounting window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// bucketKey returns the map key for the period containing t.
func bucketKey(p Period, t time.Time) string {
	switch p {
	case PeriodDaily:
		return t.Format("2006-01-02")
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return t.Format("2006-01")
	}
}

// =============================================================================
// STATS
// =============================================================================

// latencyHistorySize bounds the per-backend latency ring.
const latencyHistorySize = 100

// Stats tracks per-backend call outcomes and spend. Spend within a
// period only increases; the only way down is an explicit ResetPeriod.
type Stats struct {
	mu        sync.Mutex
	calls     int
	errors    int
	latencies []time.Duration // most recent latencyHistorySize entries
	tokensIn  int64
	tokensOut int64
	totalCost float64
	spend     map[Period]map[string]float64

	now func() time.Time // Injectable clock for tests
}

// Snapshot is a read-only copy of a backend's stats.
type Snapshot struct {
	Calls        int
	Errors       int
	ErrorRate    float64
	AvgLatency   time.Duration
	TokensIn     int64
	TokensOut    int64
	TotalCost    float64
	DailySpend   float64
	WeeklySpend  float64
	MonthlySpend float64
}

// NewStats creates an empty stats tracker.
func NewStats() *Stats {
	return &Stats{
		spend: map[Period]map[string]float64{
			PeriodDaily:   {},
			PeriodWeekly:  {},
			PeriodMonthly: {},
		},
		now: time.Now,
	}
}

// RecordSuccess records a completed call: latency, token usage, and cost
// attributed to the current daily, weekly, and monthly buckets.
func (s *Stats) RecordSuccess(latency time.Duration, tokensIn, tokensOut int, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.latencies = append(s.latencies, latency)
	if len(s.latencies) > latencyHistorySize {
		s.latencies = s.latencies[len(s.latencies)-latencyHistorySize:]
	}
	s.tokensIn += int64(tokensIn)
	s.tokensOut += int64(tokensOut)
	s.totalCost += cost

	t := s.now()
	for _, p := range []Period{PeriodDaily, PeriodWeekly, PeriodMonthly} {
		s.spend[p][bucketKey(p, t)] += cost
	}
}

// RecordError records a failed call attempt.
func (s *Stats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.errors++
}

// Spend returns the accumulated cost in the current bucket of the period.
func (s *Stats) Spend(p Period) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spend[p][bucketKey(p, s.now())]
}

// ResetPeriod zeroes the current bucket of the period. Rollover is an
// external trigger; nothing in this package resets spend on its own.
func (s *Stats) ResetPeriod(p Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spend[p], bucketKey(p, s.now()))
}

// Snapshot returns a copy of the current stats.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg time.Duration
	if len(s.latencies) > 0 {
		var sum time.Duration
		for _, l := range s.latencies {
			sum += l
		}
		avg = sum / time.Duration(len(s.latencies))
	}

	errorRate := 0.0
	if s.calls > 0 {
		errorRate = float64(s.errors) / float64(s.calls)
	}

	t := s.now()
	return Snapshot{
		Calls:        s.calls,
		Errors:       s.errors,
		ErrorRate:    errorRate,
		AvgLatency:   avg,
		TokensIn:     s.tokensIn,
		TokensOut:    s.tokensOut,
		TotalCost:    s.totalCost,
		DailySpend:   s.spend[PeriodDaily][bucketKey(PeriodDaily, t)],
		WeeklySpend:  s.spend[PeriodWeekly][bucketKey(PeriodWeekly, t)],
		MonthlySpend: s.spend[PeriodMonthly][bucketKey(PeriodMonthly, t)],
	}
}
