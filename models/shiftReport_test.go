package models

import (
	"testing"
	"time"
)

func TestNewShiftReport_DerivesOverShort(t *testing.T) {
	over := NewShiftReport("EMP-1", "2024-05-01", d("1000"), d("1020"))
	if !over.Over.Equal(d("20")) || !over.Short.IsZero() {
		t.Fatalf("expected over 20, got over=%s short=%s", over.Over, over.Short)
	}
	short := NewShiftReport("EMP-1", "2024-05-01", d("1000"), d("990"))
	if !short.Short.Equal(d("10")) || !short.Over.IsZero() {
		t.Fatalf("expected short 10, got over=%s short=%s", short.Over, short.Short)
	}
	even := NewShiftReport("EMP-1", "2024-05-01", d("1000"), d("1000"))
	if !even.Over.IsZero() || !even.Short.IsZero() {
		t.Fatalf("expected no over/short")
	}
}

func TestAggregateDay(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	reports := []*ShiftReport{
		{ID: 1, Over: d("20"), Short: d("0"), CreatedAt: t0},
		{ID: 2, Over: d("0"), Short: d("15"), CreatedAt: t0.Add(4 * time.Hour)},
	}

	single := AggregateDay("EMP-1", "2024-05-01", reports[:1], SameDayPolicyFlag)
	if single.Ambiguous || !single.Over.Equal(d("20")) {
		t.Fatalf("single report must pass through: %+v", single)
	}

	flagged := AggregateDay("EMP-1", "2024-05-01", reports, SameDayPolicyFlag)
	if !flagged.Ambiguous || flagged.ReportCount != 2 {
		t.Fatalf("flag policy must mark ambiguous: %+v", flagged)
	}

	sum := AggregateDay("EMP-1", "2024-05-01", reports, SameDayPolicySum)
	if sum.Ambiguous || !sum.Over.Equal(d("20")) || !sum.Short.Equal(d("15")) {
		t.Fatalf("sum policy: %+v", sum)
	}

	latest := AggregateDay("EMP-1", "2024-05-01", reports, SameDayPolicyLatest)
	if latest.Ambiguous || !latest.Over.IsZero() || !latest.Short.Equal(d("15")) {
		t.Fatalf("latest policy: %+v", latest)
	}

	empty := AggregateDay("EMP-1", "2024-05-01", nil, SameDayPolicyFlag)
	if empty.Ambiguous || empty.ReportCount != 0 {
		t.Fatalf("no reports: %+v", empty)
	}
}

func TestGroupReportsByDate(t *testing.T) {
	dates, byDate := GroupReportsByDate([]*ShiftReport{
		{ID: 1, BusinessDate: "2024-05-03"},
		{ID: 2, BusinessDate: "2024-05-01"},
		{ID: 3, BusinessDate: "2024-05-03"},
	})
	if len(dates) != 2 || dates[0] != "2024-05-01" || dates[1] != "2024-05-03" {
		t.Fatalf("unexpected dates %v", dates)
	}
	if len(byDate["2024-05-03"]) != 2 {
		t.Fatalf("expected 2 reports on 2024-05-03")
	}
}
