package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

const (
	// SourceFinnhub is the macro adapter's stable source identifier.
	SourceFinnhub = "finnhub"

	// DefaultFinnhubBaseURL is the base URL for the Finnhub API.
	DefaultFinnhubBaseURL = "https://finnhub.io/api/v1"

	defaultFinnhubRateLimit = 5
)

// finnhubCalendarResponse is the envelope returned by /calendar/economic.
type finnhubCalendarResponse struct {
	EconomicCalendar []finnhubCalendarEntry `json:"economicCalendar"`
}

type finnhubCalendarEntry struct {
	Country  string   `json:"country"`
	Event    string   `json:"event"`
	Time     string   `json:"time"`
	Actual   *float64 `json:"actual"`
	Estimate *float64 `json:"estimate"`
	Prev     *float64 `json:"prev"`
	Unit     string   `json:"unit"`
}

// MacroAdapter fetches the US economic calendar from Finnhub for a calendar
// month scope.
type MacroAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	roster     *MacroRoster
	logger     arbor.ILogger
}

// MacroOption configures the MacroAdapter.
type MacroOption func(*MacroAdapter)

// WithMacroBaseURL sets a custom Finnhub base URL.
func WithMacroBaseURL(baseURL string) MacroOption {
	return func(a *MacroAdapter) {
		a.baseURL = baseURL
	}
}

// WithMacroHTTPClient sets a custom HTTP client.
func WithMacroHTTPClient(httpClient *http.Client) MacroOption {
	return func(a *MacroAdapter) {
		a.httpClient = httpClient
	}
}

// WithMacroRateLimit sets a custom rate limit.
func WithMacroRateLimit(requestsPerSecond int) MacroOption {
	return func(a *MacroAdapter) {
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewMacroAdapter creates a Finnhub-backed macro calendar adapter.
func NewMacroAdapter(apiKey string, roster *MacroRoster, logger arbor.ILogger, opts ...MacroOption) *MacroAdapter {
	a := &MacroAdapter{
		apiKey:  apiKey,
		baseURL: DefaultFinnhubBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultFinnhubRateLimit), defaultFinnhubRateLimit),
		roster:  roster,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.roster == nil {
		a.roster = DefaultMacroRoster()
	}

	return a
}

// Name returns the source identifier.
func (a *MacroAdapter) Name() string {
	return SourceFinnhub
}

// Fetch retrieves US economic calendar entries for the scope's month.
func (a *MacroAdapter) Fetch(ctx context.Context, scope models.Scope) ([]models.RawEventRecord, error) {
	if !scope.IsMonth() {
		return nil, fmt.Errorf("macro adapter requires a month scope, got %s", scope)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{Source: SourceFinnhub, RetryAfter: time.Second}
	}

	from := scope.Month.UTC()
	to := from.AddDate(0, 1, -1)

	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("token", a.apiKey)

	reqURL := fmt.Sprintf("%s/calendar/economic?%s", a.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &UnreachableError{Source: SourceFinnhub, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		retryAfter := time.Minute
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &RateLimitError{Source: SourceFinnhub, RetryAfter: retryAfter}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &UnauthorizedError{Source: SourceFinnhub}
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, &UnreachableError{
			Source: SourceFinnhub,
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var calendar finnhubCalendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&calendar); err != nil {
		return nil, &UnreachableError{
			Source: SourceFinnhub,
			Err:    fmt.Errorf("failed to decode response: %w", err),
		}
	}

	records := make([]models.RawEventRecord, 0, len(calendar.EconomicCalendar))
	for _, entry := range calendar.EconomicCalendar {
		if entry.Country != "US" {
			continue
		}

		record, err := a.normalize(entry)
		if err != nil {
			a.logger.Warn().
				Str("event", entry.Event).
				Str("time", entry.Time).
				Err(err).
				Msg("Dropping malformed macro entry")
			continue
		}
		records = append(records, *record)
	}

	return records, nil
}

func (a *MacroAdapter) normalize(entry finnhubCalendarEntry) (*models.RawEventRecord, error) {
	if entry.Event == "" {
		return nil, fmt.Errorf("missing event name")
	}

	eventTime, err := parseFinnhubTime(entry.Time)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to archive entry: %w", err)
	}

	return &models.RawEventRecord{
		Source:         SourceFinnhub,
		SourceKey:      fmt.Sprintf("macro:%s:%s", entry.Event, eventTime.Format("2006-01-02")),
		Type:           models.EventTypeMacro,
		EventDate:      eventTime,
		Title:          entry.Event,
		Importance:     a.roster.Importance(entry.Event),
		MacroEventName: entry.Event,
		Consensus:      formatMacroValue(entry.Estimate, entry.Unit),
		ActualValue:    formatMacroValue(entry.Actual, entry.Unit),
		PreviousValue:  formatMacroValue(entry.Prev, entry.Unit),
		Raw:            raw,
	}, nil
}

func parseFinnhubTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid event time %q", s)
}

func formatMacroValue(v *float64, unit string) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + unit
}

var _ interfaces.SourceAdapter = (*MacroAdapter)(nil)
