package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType enumerates the kinds of timeline events the aggregator tracks.
type EventType string

const (
	EventTypeEarnings EventType = "earnings"
	EventTypeMacro    EventType = "macro"
	EventTypeInsider  EventType = "insider"
	EventTypeAnalyst  EventType = "analyst"
	EventTypeFiling   EventType = "filing"
)

// Importance classifies how market-moving an event is expected to be.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// EventStatus tracks the event lifecycle.
type EventStatus string

const (
	StatusUpcoming  EventStatus = "upcoming"
	StatusCompleted EventStatus = "completed"
)

// SummaryLevel selects which AI summary variant is requested.
type SummaryLevel string

const (
	SummaryShort  SummaryLevel = "short"
	SummaryDetail SummaryLevel = "detail"
)

// ReportTime values for earnings events.
const (
	ReportTimePreMarket   = "pre-market"
	ReportTimeAfterMarket = "after-market"
)

// Event is the canonical, deduplicated representation of a real-world
// occurrence (earnings release, macro data print, filing) regardless of how
// many upstream sources reported it. The JSON shape is the external
// serialization contract and must round-trip losslessly through the store.
type Event struct {
	// Identity
	ID          string      `json:"id" badgerhold:"unique"`
	Ticker      string      `json:"ticker,omitempty" badgerhold:"index"` // empty for macro-only events
	Type        EventType   `json:"event_type" badgerhold:"index"`
	EventDate   time.Time   `json:"event_date" badgerhold:"index"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Importance  Importance  `json:"importance"`
	Status      EventStatus `json:"status" badgerhold:"index"`

	// Earnings fields
	EpsEstimate     *float64 `json:"eps_estimate,omitempty"`
	EpsActual       *float64 `json:"eps_actual,omitempty"`
	RevenueEstimate *int64   `json:"revenue_estimate,omitempty"`
	RevenueActual   *int64   `json:"revenue_actual,omitempty"`
	ReportTime      string   `json:"report_time,omitempty"` // pre-market | after-market

	// Macro fields
	MacroEventName string `json:"macro_event_name,omitempty"`
	Consensus      string `json:"consensus,omitempty"`
	ActualValue    string `json:"actual_value,omitempty"`
	PreviousValue  string `json:"previous_value,omitempty"`

	// Filing fields
	FilingType string `json:"filing_type,omitempty"`
	FilingURL  string `json:"filing_url,omitempty"`

	// Analyst fields
	AnalystFirm string   `json:"analyst_firm,omitempty"`
	FromRating  string   `json:"from_rating,omitempty"`
	ToRating    string   `json:"to_rating,omitempty"`
	TargetPrice *float64 `json:"target_price,omitempty"`

	// AI summaries, each stamped with the fingerprint of the event fields
	// used to generate them
	AISummary            string `json:"ai_summary,omitempty"`
	AISummaryFingerprint string `json:"ai_summary_fingerprint,omitempty"`
	AIDetail             string `json:"ai_detail,omitempty"`
	AIDetailFingerprint  string `json:"ai_detail_fingerprint,omitempty"`

	// Provenance
	Source    string          `json:"source"`
	SourceKey string          `json:"source_key"` // Source-native dedup key
	RawData   json.RawMessage `json:"raw_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalKey identifies one upstream fact: two raw records with the same
// key describe the same real-world event and must merge into one Event.
// The event date is truncated to the source's native daily granularity.
type CanonicalKey struct {
	Ticker    string
	Type      EventType
	Day       string // YYYY-MM-DD in UTC
	SourceKey string
}

// String renders the key in a stable, storage-friendly form.
func (k CanonicalKey) String() string {
	return strings.Join([]string{k.Ticker, string(k.Type), k.Day, k.SourceKey}, "|")
}

// CanonicalKey computes the event's dedup identity.
func (e *Event) CanonicalKey() CanonicalKey {
	return CanonicalKey{
		Ticker:    e.Ticker,
		Type:      e.Type,
		Day:       e.EventDate.UTC().Format("2006-01-02"),
		SourceKey: e.SourceKey,
	}
}

// HasActuals reports whether the type-specific actual fields have arrived,
// which is what flips an upcoming event to completed.
func (e *Event) HasActuals() bool {
	switch e.Type {
	case EventTypeEarnings:
		return e.EpsActual != nil || e.RevenueActual != nil
	case EventTypeMacro:
		return e.ActualValue != ""
	case EventTypeInsider, EventTypeFiling, EventTypeAnalyst:
		// Filings and rating changes describe something that already happened.
		return true
	default:
		return false
	}
}

// GracePeriod returns how long after event_date an event without actuals may
// stay upcoming before being force-completed with actuals left null.
func GracePeriod(t EventType) time.Duration {
	switch t {
	case EventTypeEarnings:
		return 24 * time.Hour
	case EventTypeMacro:
		return 6 * time.Hour
	default:
		return 0
	}
}

// Fingerprint derives a content hash over the event fields relevant to the
// given summary level. A stored summary whose fingerprint no longer matches
// is stale and must be regenerated.
func (e *Event) Fingerprint(level SummaryLevel) string {
	h := sha256.New()

	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}

	write(e.Ticker, string(e.Type), e.Title, string(e.Importance), string(e.Status))
	write(formatFloat(e.EpsEstimate), formatFloat(e.EpsActual))
	write(formatInt(e.RevenueEstimate), formatInt(e.RevenueActual), e.ReportTime)
	write(e.MacroEventName, e.Consensus, e.ActualValue, e.PreviousValue)
	write(e.FilingType, e.AnalystFirm, e.FromRating, e.ToRating, formatFloat(e.TargetPrice))

	if level == SummaryDetail {
		write(e.Description, e.FilingURL, e.EventDate.UTC().Format(time.RFC3339))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *v)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
