package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

const (
	// SourceEdgar is the filings adapter's stable source identifier.
	SourceEdgar = "edgar"

	// DefaultEdgarBaseURL serves the submissions API.
	DefaultEdgarBaseURL = "https://data.sec.gov"

	// DefaultEdgarTickerURL serves the ticker-to-CIK mapping file.
	DefaultEdgarTickerURL = "https://www.sec.gov/files/company_tickers.json"

	// EDGAR fair-access policy allows 10 requests per second.
	defaultEdgarRateLimit = 8

	// filingLookback bounds how far back recent filings are considered.
	filingLookback = 30 * 24 * time.Hour
)

// trackedForms maps SEC form types to event types. Forms not listed here
// are skipped.
var trackedForms = map[string]models.EventType{
	"4":    models.EventTypeInsider,
	"8-K":  models.EventTypeFiling,
	"10-K": models.EventTypeFiling,
	"10-Q": models.EventTypeFiling,
}

var formImportance = map[string]models.Importance{
	"4":    models.ImportanceLow,
	"8-K":  models.ImportanceMedium,
	"10-K": models.ImportanceHigh,
	"10-Q": models.ImportanceHigh,
}

// edgarSubmissions is the relevant slice of the submissions API response.
// The recent filings block is column-oriented: parallel arrays indexed by
// filing position.
type edgarSubmissions struct {
	CIK     json.Number `json:"cik"`
	Filings struct {
		Recent struct {
			AccessionNumber       []string `json:"accessionNumber"`
			Form                  []string `json:"form"`
			FilingDate            []string `json:"filingDate"`
			PrimaryDocument       []string `json:"primaryDocument"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// edgarTickerEntry is one row of company_tickers.json.
type edgarTickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// EdgarAdapter fetches recent SEC filings for a ticker scope. The SEC
// requires a descriptive User-Agent on every request and throttles clients
// above 10 requests per second.
type EdgarAdapter struct {
	userAgent  string
	baseURL    string
	tickerURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
	now        func() time.Time

	// CIK lookups hit a single static file, so the whole mapping is
	// cached after the first fetch.
	cikMu    sync.RWMutex
	cikCache map[string]int64
}

// EdgarOption configures the EdgarAdapter.
type EdgarOption func(*EdgarAdapter)

// WithEdgarBaseURL sets a custom submissions API base URL.
func WithEdgarBaseURL(baseURL string) EdgarOption {
	return func(a *EdgarAdapter) {
		a.baseURL = baseURL
	}
}

// WithEdgarTickerURL sets a custom ticker mapping URL.
func WithEdgarTickerURL(tickerURL string) EdgarOption {
	return func(a *EdgarAdapter) {
		a.tickerURL = tickerURL
	}
}

// WithEdgarHTTPClient sets a custom HTTP client.
func WithEdgarHTTPClient(httpClient *http.Client) EdgarOption {
	return func(a *EdgarAdapter) {
		a.httpClient = httpClient
	}
}

// WithEdgarRateLimit sets a custom rate limit.
func WithEdgarRateLimit(requestsPerSecond int) EdgarOption {
	return func(a *EdgarAdapter) {
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewEdgarAdapter creates a SEC EDGAR filings adapter.
func NewEdgarAdapter(userAgent string, logger arbor.ILogger, opts ...EdgarOption) *EdgarAdapter {
	a := &EdgarAdapter{
		userAgent: userAgent,
		baseURL:   DefaultEdgarBaseURL,
		tickerURL: DefaultEdgarTickerURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultEdgarRateLimit), defaultEdgarRateLimit),
		logger:  logger,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Name returns the source identifier.
func (a *EdgarAdapter) Name() string {
	return SourceEdgar
}

// Fetch retrieves recent filings for the scope's ticker.
func (a *EdgarAdapter) Fetch(ctx context.Context, scope models.Scope) ([]models.RawEventRecord, error) {
	if scope.IsMonth() {
		return nil, fmt.Errorf("edgar adapter requires a ticker scope, got %s", scope)
	}

	cik, err := a.lookupCIK(ctx, scope.Ticker)
	if err != nil {
		return nil, err
	}

	var submissions edgarSubmissions
	submissionsURL := fmt.Sprintf("%s/submissions/CIK%010d.json", a.baseURL, cik)
	if err := a.get(ctx, submissionsURL, &submissions); err != nil {
		return nil, err
	}

	cutoff := a.now().UTC().Add(-filingLookback)
	recent := submissions.Filings.Recent

	var records []models.RawEventRecord
	for i, form := range recent.Form {
		eventType, tracked := trackedForms[form]
		if !tracked {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) {
			break
		}

		filingDate, err := time.ParseInLocation("2006-01-02", recent.FilingDate[i], time.UTC)
		if err != nil {
			a.logger.Warn().
				Str("ticker", scope.Ticker).
				Str("filing_date", recent.FilingDate[i]).
				Err(err).
				Msg("Dropping malformed filing entry")
			continue
		}
		if filingDate.Before(cutoff) {
			continue
		}

		accession := recent.AccessionNumber[i]
		primaryDoc := ""
		if i < len(recent.PrimaryDocument) {
			primaryDoc = recent.PrimaryDocument[i]
		}
		description := ""
		if i < len(recent.PrimaryDocDescription) {
			description = recent.PrimaryDocDescription[i]
		}

		raw, err := json.Marshal(map[string]string{
			"accession_number": accession,
			"form":             form,
			"filing_date":      recent.FilingDate[i],
			"primary_document": primaryDoc,
		})
		if err != nil {
			continue
		}

		records = append(records, models.RawEventRecord{
			Source:      SourceEdgar,
			SourceKey:   "filing:" + accession,
			Ticker:      scope.Ticker,
			Type:        eventType,
			EventDate:   filingDate,
			Title:       filingTitle(scope.Ticker, form),
			Description: description,
			Importance:  formImportance[form],
			Status:      models.StatusCompleted,
			FilingType:  form,
			FilingURL:   filingURL(cik, accession, primaryDoc),
			Raw:         raw,
		})
	}

	return records, nil
}

// lookupCIK resolves a ticker to its SEC CIK number, loading and caching
// the full mapping file on first use.
func (a *EdgarAdapter) lookupCIK(ctx context.Context, ticker string) (int64, error) {
	a.cikMu.RLock()
	if a.cikCache != nil {
		cik, ok := a.cikCache[ticker]
		a.cikMu.RUnlock()
		if !ok {
			return 0, fmt.Errorf("no CIK mapping for ticker %s", ticker)
		}
		return cik, nil
	}
	a.cikMu.RUnlock()

	var entries map[string]edgarTickerEntry
	if err := a.get(ctx, a.tickerURL, &entries); err != nil {
		return 0, err
	}

	cache := make(map[string]int64, len(entries))
	for _, entry := range entries {
		cache[strings.ToUpper(entry.Ticker)] = entry.CIK
	}

	a.cikMu.Lock()
	a.cikCache = cache
	a.cikMu.Unlock()

	cik, ok := cache[ticker]
	if !ok {
		return 0, fmt.Errorf("no CIK mapping for ticker %s", ticker)
	}
	return cik, nil
}

func (a *EdgarAdapter) get(ctx context.Context, reqURL string, result interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return &RateLimitError{Source: SourceEdgar, RetryAfter: time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &UnreachableError{Source: SourceEdgar, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return &RateLimitError{Source: SourceEdgar, RetryAfter: time.Minute}
	case http.StatusForbidden:
		// EDGAR answers 403 when the User-Agent is missing or generic.
		return &UnauthorizedError{Source: SourceEdgar}
	default:
		body, _ := io.ReadAll(resp.Body)
		return &UnreachableError{
			Source: SourceEdgar,
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &UnreachableError{
			Source: SourceEdgar,
			Err:    fmt.Errorf("failed to decode response: %w", err),
		}
	}

	return nil
}

func filingTitle(ticker, form string) string {
	switch form {
	case "4":
		return fmt.Sprintf("%s Insider Transaction (Form 4)", ticker)
	case "8-K":
		return fmt.Sprintf("%s Material Event (8-K)", ticker)
	case "10-K":
		return fmt.Sprintf("%s Annual Report (10-K)", ticker)
	case "10-Q":
		return fmt.Sprintf("%s Quarterly Report (10-Q)", ticker)
	default:
		return fmt.Sprintf("%s SEC Filing (%s)", ticker, form)
	}
}

func filingURL(cik int64, accession, primaryDoc string) string {
	accessionPath := strings.ReplaceAll(accession, "-", "")
	if primaryDoc == "" {
		return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%d/%s", cik, accessionPath)
	}
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%d/%s/%s", cik, accessionPath, primaryDoc)
}

var _ interfaces.SourceAdapter = (*EdgarAdapter)(nil)
