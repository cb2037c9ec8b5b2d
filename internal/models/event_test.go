package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func TestCanonicalKey_SamePhysicalEvent(t *testing.T) {
	date := time.Date(2026, 2, 10, 21, 30, 0, 0, time.UTC)

	event := &Event{
		Ticker:    "AAPL",
		Type:      EventTypeEarnings,
		EventDate: date,
		SourceKey: "earnings:AAPL:2026-02-10",
	}
	record := &RawEventRecord{
		Ticker:    "AAPL",
		Type:      EventTypeEarnings,
		EventDate: date.Add(2 * time.Hour), // same UTC day, different time
		SourceKey: "earnings:AAPL:2026-02-10",
	}

	assert.Equal(t, event.CanonicalKey(), record.CanonicalKey())
	assert.Equal(t, "AAPL|earnings|2026-02-10|earnings:AAPL:2026-02-10", event.CanonicalKey().String())
}

func TestCanonicalKey_DayBoundary(t *testing.T) {
	a := &Event{Ticker: "AAPL", Type: EventTypeEarnings, SourceKey: "k",
		EventDate: time.Date(2026, 2, 10, 23, 0, 0, 0, time.UTC)}
	b := &Event{Ticker: "AAPL", Type: EventTypeEarnings, SourceKey: "k",
		EventDate: time.Date(2026, 2, 11, 1, 0, 0, 0, time.UTC)}

	assert.NotEqual(t, a.CanonicalKey(), b.CanonicalKey())
}

func TestHasActuals(t *testing.T) {
	earnings := &Event{Type: EventTypeEarnings}
	assert.False(t, earnings.HasActuals())
	earnings.EpsActual = floatPtr(1.23)
	assert.True(t, earnings.HasActuals())

	revOnly := &Event{Type: EventTypeEarnings, RevenueActual: intPtr(1000000)}
	assert.True(t, revOnly.HasActuals())

	macro := &Event{Type: EventTypeMacro}
	assert.False(t, macro.HasActuals())
	macro.ActualValue = "3.2%"
	assert.True(t, macro.HasActuals())

	// Filings and rating changes are facts about the past
	assert.True(t, (&Event{Type: EventTypeFiling}).HasActuals())
	assert.True(t, (&Event{Type: EventTypeInsider}).HasActuals())
	assert.True(t, (&Event{Type: EventTypeAnalyst}).HasActuals())
}

func TestGracePeriod(t *testing.T) {
	assert.Equal(t, 24*time.Hour, GracePeriod(EventTypeEarnings))
	assert.Equal(t, 6*time.Hour, GracePeriod(EventTypeMacro))
	assert.Equal(t, time.Duration(0), GracePeriod(EventTypeFiling))
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	event := &Event{
		Ticker:      "AAPL",
		Type:        EventTypeEarnings,
		Title:       "AAPL Earnings Report",
		Importance:  ImportanceHigh,
		Status:      StatusUpcoming,
		EpsEstimate: floatPtr(2.10),
		EventDate:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	fp1 := event.Fingerprint(SummaryShort)
	fp2 := event.Fingerprint(SummaryShort)
	assert.Equal(t, fp1, fp2, "fingerprint must be deterministic")

	// Arrival of actuals changes the fingerprint for both levels
	event.EpsActual = floatPtr(2.25)
	event.Status = StatusCompleted
	assert.NotEqual(t, fp1, event.Fingerprint(SummaryShort))
}

func TestFingerprint_DetailIncludesDescription(t *testing.T) {
	event := &Event{
		Ticker:    "AAPL",
		Type:      EventTypeEarnings,
		Title:     "AAPL Earnings Report",
		EventDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	shortBefore := event.Fingerprint(SummaryShort)
	detailBefore := event.Fingerprint(SummaryDetail)

	event.Description = "Q1 FY2026 results"

	// Description only affects the detail fingerprint
	assert.Equal(t, shortBefore, event.Fingerprint(SummaryShort))
	assert.NotEqual(t, detailBefore, event.Fingerprint(SummaryDetail))
}

func TestFingerprint_DetailIncludesFilingURL(t *testing.T) {
	event := &Event{
		Ticker:     "AAPL",
		Type:       EventTypeFiling,
		Title:      "AAPL 8-K Filing",
		FilingType: "8-K",
		FilingURL:  "https://www.sec.gov/Archives/edgar/data/320193/old.htm",
		EventDate:  time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	shortBefore := event.Fingerprint(SummaryShort)
	detailBefore := event.Fingerprint(SummaryDetail)

	event.FilingURL = "https://www.sec.gov/Archives/edgar/data/320193/corrected.htm"

	// A corrected document link only affects the detail fingerprint
	assert.Equal(t, shortBefore, event.Fingerprint(SummaryShort))
	assert.NotEqual(t, detailBefore, event.Fingerprint(SummaryDetail))
}

func TestFingerprint_LevelsDiffer(t *testing.T) {
	event := &Event{Ticker: "AAPL", Type: EventTypeEarnings, Title: "AAPL Earnings Report"}
	assert.NotEqual(t, event.Fingerprint(SummaryShort), event.Fingerprint(SummaryDetail))
}
