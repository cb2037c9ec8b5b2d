package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/eodhd"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

const (
	// SourceEodhd is the earnings adapter's stable source identifier.
	SourceEodhd = "eodhd"

	// earningsLookback and earningsLookahead bound the calendar window
	// fetched for a ticker: far enough back to pick up late actuals, far
	// enough forward to cover the next scheduled report.
	earningsLookback  = 14 * 24 * time.Hour
	earningsLookahead = 120 * 24 * time.Hour
)

// EarningsAdapter fetches earnings calendar entries from EODHD for a single
// ticker scope.
type EarningsAdapter struct {
	client *eodhd.Client
	logger arbor.ILogger
	now    func() time.Time
}

// NewEarningsAdapter creates an EODHD-backed earnings adapter.
func NewEarningsAdapter(client *eodhd.Client, logger arbor.ILogger) *EarningsAdapter {
	return &EarningsAdapter{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the source identifier.
func (a *EarningsAdapter) Name() string {
	return SourceEodhd
}

// Fetch retrieves earnings calendar entries for the scope's ticker.
func (a *EarningsAdapter) Fetch(ctx context.Context, scope models.Scope) ([]models.RawEventRecord, error) {
	if scope.IsMonth() {
		return nil, fmt.Errorf("earnings adapter requires a ticker scope, got %s", scope)
	}

	now := a.now().UTC()
	symbol := scope.Ticker + ".US"

	resp, err := a.client.GetEarningsCalendar(ctx, []string{symbol},
		eodhd.WithDateRange(now.Add(-earningsLookback), now.Add(earningsLookahead)))
	if err != nil {
		return nil, a.translateError(err)
	}

	records := make([]models.RawEventRecord, 0, len(resp.Earnings))
	for _, entry := range resp.Earnings {
		record, err := a.normalize(scope.Ticker, entry)
		if err != nil {
			a.logger.Warn().
				Str("ticker", scope.Ticker).
				Str("report_date", entry.ReportDate).
				Err(err).
				Msg("Dropping malformed earnings entry")
			continue
		}
		records = append(records, *record)
	}

	return records, nil
}

func (a *EarningsAdapter) normalize(ticker string, entry eodhd.EarningsEntry) (*models.RawEventRecord, error) {
	reportDate, err := time.ParseInLocation("2006-01-02", entry.ReportDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid report_date %q: %w", entry.ReportDate, err)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to archive entry: %w", err)
	}

	return &models.RawEventRecord{
		Source:          SourceEodhd,
		SourceKey:       fmt.Sprintf("earnings:%s:%s", ticker, entry.ReportDate),
		Ticker:          ticker,
		Type:            models.EventTypeEarnings,
		EventDate:       reportDate,
		Title:           fmt.Sprintf("%s Earnings Report", ticker),
		Importance:      models.ImportanceHigh,
		EpsEstimate:     entry.Estimate,
		EpsActual:       entry.Actual,
		RevenueEstimate: entry.RevenueEstimate,
		RevenueActual:   entry.RevenueActual,
		ReportTime:      normalizeReportTime(entry.BeforeAfterMarket),
		Raw:             raw,
	}, nil
}

func (a *EarningsAdapter) translateError(err error) error {
	var rateErr *eodhd.RateLimitError
	if errors.As(err, &rateErr) {
		return &RateLimitError{Source: SourceEodhd, RetryAfter: rateErr.RetryAfter}
	}

	var apiErr *eodhd.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return &UnauthorizedError{Source: SourceEodhd}
		}
		return &UnreachableError{Source: SourceEodhd, Err: apiErr}
	}

	return &UnreachableError{Source: SourceEodhd, Err: err}
}

func normalizeReportTime(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beforemarket", "before market", "bmo", "pre-market":
		return models.ReportTimePreMarket
	case "aftermarket", "after market", "amc", "after-market":
		return models.ReportTimeAfterMarket
	default:
		return ""
	}
}

var _ interfaces.SourceAdapter = (*EarningsAdapter)(nil)
