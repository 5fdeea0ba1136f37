// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"testing"
	"time"
)

// stubGenerator returns a fixed result.
type stubGenerator struct {
	result Result
	err    error
}

func (s *stubGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := s.result
	return &r, nil
}

func TestInfoHas(t *testing.T) {
	if !ClaudeInfo.Has(CapVision) {
		t.Error("claude should have vision")
	}
	if GeminiInfo.Has(CapVision) {
		t.Error("gemini should not have vision")
	}
	if !GroqInfo.Has(CapText) {
		t.Error("groq should have text")
	}
}

func TestInfoCost(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		in, out int
		want    float64
	}{
		{"claude million each", ClaudeInfo, 1_000_000, 1_000_000, 1.50},
		{"gemini is free", GeminiInfo, 1_000_000, 1_000_000, 0},
		{"groq small call", GroqInfo, 10_000, 5_000, 0.0015},
		{"zero tokens", OpenRouterInfo, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.info.Cost(tt.in, tt.out)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Cost(%d, %d) = %v, want %v", tt.in, tt.out, got, tt.want)
			}
		})
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(GeminiInfo, &stubGenerator{})
	reg.Register(ClaudeInfo, &stubGenerator{})

	p, ok := reg.Get("gemini")
	if !ok {
		t.Fatal("gemini not found")
	}
	if p.Name != "gemini" {
		t.Errorf("Name = %q", p.Name)
	}
	if _, ok := reg.Get("nope"); ok {
		t.Error("unexpected hit for unregistered name")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "gemini" || names[1] != "claude" {
		t.Errorf("Names = %v, want registration order", names)
	}
}

func TestRegistryReRegisterKeepsStats(t *testing.T) {
	reg := NewRegistry()
	reg.Register(GroqInfo, &stubGenerator{})
	reg.Stats("groq").RecordError()

	reg.Register(GroqInfo, &stubGenerator{})

	if got := reg.Stats("groq").Snapshot().Errors; got != 1 {
		t.Errorf("Errors = %d after re-register, want 1", got)
	}
	if names := reg.Names(); len(names) != 1 {
		t.Errorf("Names = %v, want one entry", names)
	}
}

func TestStatsRecordSuccess(t *testing.T) {
	s := NewStats()
	s.RecordSuccess(100*time.Millisecond, 1000, 500, 0.01)
	s.RecordSuccess(300*time.Millisecond, 2000, 1000, 0.02)

	snap := s.Snapshot()
	if snap.Calls != 2 || snap.Errors != 0 {
		t.Errorf("calls/errors = %d/%d", snap.Calls, snap.Errors)
	}
	if snap.AvgLatency != 200*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 200ms", snap.AvgLatency)
	}
	if snap.TokensIn != 3000 || snap.TokensOut != 1500 {
		t.Errorf("tokens = %d/%d", snap.TokensIn, snap.TokensOut)
	}
	if diff := snap.TotalCost - 0.03; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCost = %v, want 0.03", snap.TotalCost)
	}
	if diff := snap.MonthlySpend - 0.03; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MonthlySpend = %v, want 0.03", snap.MonthlySpend)
	}
}

func TestStatsLatencyHistoryBounded(t *testing.T) {
	s := NewStats()
	// 150 fast calls then 100 slow ones; only the last 100 count.
	for i := 0; i < 150; i++ {
		s.RecordSuccess(10*time.Millisecond, 1, 1, 0)
	}
	for i := 0; i < 100; i++ {
		s.RecordSuccess(50*time.Millisecond, 1, 1, 0)
	}
	if got := s.Snapshot().AvgLatency; got != 50*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 50ms from the last 100 calls", got)
	}
}

func TestStatsErrorRate(t *testing.T) {
	s := NewStats()
	s.RecordSuccess(time.Millisecond, 1, 1, 0)
	s.RecordError()
	s.RecordError()
	s.RecordError()

	snap := s.Snapshot()
	if snap.ErrorRate != 0.75 {
		t.Errorf("ErrorRate = %v, want 0.75", snap.ErrorRate)
	}
}

func TestStatsSpendMonotoneWithinPeriod(t *testing.T) {
	s := NewStats()
	prev := 0.0
	for i := 0; i < 10; i++ {
		s.RecordSuccess(time.Millisecond, 100, 100, 0.005)
		cur := s.Spend(PeriodMonthly)
		if cur < prev {
			t.Fatalf("monthly spend decreased: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestStatsPeriodRollover(t *testing.T) {
	s := NewStats()
	now := time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.RecordSuccess(time.Millisecond, 1000, 1000, 1.0)
	if got := s.Spend(PeriodDaily); got != 1.0 {
		t.Fatalf("daily spend = %v, want 1.0", got)
	}

	// New day, new month: current buckets are empty but totals remain.
	now = time.Date(2025, 4, 1, 1, 0, 0, 0, time.UTC)
	if got := s.Spend(PeriodDaily); got != 0 {
		t.Errorf("daily spend after rollover = %v, want 0", got)
	}
	if got := s.Spend(PeriodMonthly); got != 0 {
		t.Errorf("monthly spend after rollover = %v, want 0", got)
	}
	if got := s.Snapshot().TotalCost; got != 1.0 {
		t.Errorf("TotalCost = %v, want 1.0", got)
	}
}

func TestStatsResetPeriod(t *testing.T) {
	s := NewStats()
	s.RecordSuccess(time.Millisecond, 1000, 1000, 2.0)

	s.ResetPeriod(PeriodMonthly)

	if got := s.Spend(PeriodMonthly); got != 0 {
		t.Errorf("monthly spend after reset = %v, want 0", got)
	}
	// Other periods are untouched.
	if got := s.Spend(PeriodDaily); got != 2.0 {
		t.Errorf("daily spend after monthly reset = %v, want 2.0", got)
	}
}

func TestProviderAcquireUnlimited(t *testing.T) {
	reg := NewRegistry()
	info := GeminiInfo
	info.RequestsPerMinute = 0
	reg.Register(info, &stubGenerator{})

	p, _ := reg.Get("gemini")
	if err := p.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire with no limiter: %v", err)
	}
}

func TestProviderAcquireRespectsContext(t *testing.T) {
	reg := NewRegistry()
	info := GeminiInfo
	info.RequestsPerMinute = 1
	reg.Register(info, &stubGenerator{})
	p, _ := reg.Get("gemini")

	// Exhaust the burst allowance.
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Acquire(ctx); err == nil {
		t.Error("expected Acquire to fail once the rate is exhausted and the context expires")
	}
}
