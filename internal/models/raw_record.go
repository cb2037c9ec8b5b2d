package models

import (
	"encoding/json"
	"time"
)

// Scope identifies what an adapter fetch covers: a single ticker for
// ticker-bound sources, or a calendar month for macro sources.
type Scope struct {
	Ticker string
	Month  time.Time // First day of the month, UTC; zero for ticker scopes
}

// IsMonth reports whether this is a calendar-month scope.
func (s Scope) IsMonth() bool {
	return !s.Month.IsZero()
}

// String renders the scope for logging and lock keys.
func (s Scope) String() string {
	if s.IsMonth() {
		return "month:" + s.Month.UTC().Format("2006-01")
	}
	return s.Ticker
}

// RawEventRecord is the normalized output of a single source adapter. It is
// ephemeral: owned by the pipeline run that produced it and discarded after
// reconciliation, surviving only inside the winning Event's raw payload.
type RawEventRecord struct {
	Source      string      // Adapter identifier, e.g. "eodhd"
	SourceKey   string      // Source-native dedup key, required for matching
	Ticker      string      // Empty for macro events
	Type        EventType
	EventDate   time.Time
	Title       string
	Description string
	Importance  Importance
	Status      EventStatus // Optional upstream hint; reconciler has the final say

	// Type-specific payload, same optional shape as Event
	EpsEstimate     *float64
	EpsActual       *float64
	RevenueEstimate *int64
	RevenueActual   *int64
	ReportTime      string

	MacroEventName string
	Consensus      string
	ActualValue    string
	PreviousValue  string

	FilingType string
	FilingURL  string

	AnalystFirm string
	FromRating  string
	ToRating    string
	TargetPrice *float64

	Raw json.RawMessage // Upstream payload archive
}

// CanonicalKey computes the record's dedup identity, matching Event.CanonicalKey.
func (r *RawEventRecord) CanonicalKey() CanonicalKey {
	return CanonicalKey{
		Ticker:    r.Ticker,
		Type:      r.Type,
		Day:       r.EventDate.UTC().Format("2006-01-02"),
		SourceKey: r.SourceKey,
	}
}
