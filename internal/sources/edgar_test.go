package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/models"
)

const edgarTestNow = "2026-03-10"

func newEdgarAdapter(t *testing.T, handler http.HandlerFunc) *EdgarAdapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter := NewEdgarAdapter("stock-pulse test admin@example.com", common.GetLogger(),
		WithEdgarBaseURL(server.URL),
		WithEdgarTickerURL(server.URL+"/files/company_tickers.json"),
		WithEdgarHTTPClient(server.Client()),
	)
	adapter.now = func() time.Time {
		now, _ := time.ParseInLocation("2006-01-02", edgarTestNow, time.UTC)
		return now
	}
	return adapter
}

func writeTickerMapping(w http.ResponseWriter) {
	fmt.Fprint(w, `{
		"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
		"1": {"cik_str": 789019, "ticker": "MSFT", "title": "Microsoft Corp"}
	}`)
}

func TestEdgarFetch_MapsFilingsToRecords(t *testing.T) {
	var mappingFetches atomic.Int32
	adapter := newEdgarAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "stock-pulse test admin@example.com", r.Header.Get("User-Agent"))

		switch r.URL.Path {
		case "/files/company_tickers.json":
			mappingFetches.Add(1)
			writeTickerMapping(w)
		case "/submissions/CIK0000320193.json":
			fmt.Fprint(w, `{
				"cik": "320193",
				"filings": {
					"recent": {
						"accessionNumber": ["0000320193-26-000012", "0000320193-26-000011", "0000320193-26-000010", "0000320193-26-000009"],
						"form": ["8-K", "4", "SC 13G", "10-Q"],
						"filingDate": ["2026-03-05", "2026-02-27", "2026-03-01", "2026-01-15"],
						"primaryDocument": ["a8k.htm", "form4.xml", "sc13g.htm", "a10q.htm"],
						"primaryDocDescription": ["Material event", "Statement of changes", "", "Quarterly report"]
					}
				}
			}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	records, err := adapter.Fetch(context.Background(), models.Scope{Ticker: "AAPL"})
	require.NoError(t, err)

	// SC 13G is untracked, the 10-Q is past the lookback.
	require.Len(t, records, 2)

	eightK := records[0]
	assert.Equal(t, "edgar", eightK.Source)
	assert.Equal(t, "filing:0000320193-26-000012", eightK.SourceKey)
	assert.Equal(t, models.EventTypeFiling, eightK.Type)
	assert.Equal(t, "AAPL Material Event (8-K)", eightK.Title)
	assert.Equal(t, "Material event", eightK.Description)
	assert.Equal(t, models.ImportanceMedium, eightK.Importance)
	assert.Equal(t, models.StatusCompleted, eightK.Status)
	assert.Equal(t, "8-K", eightK.FilingType)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000032019326000012/a8k.htm", eightK.FilingURL)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), eightK.EventDate)

	form4 := records[1]
	assert.Equal(t, models.EventTypeInsider, form4.Type)
	assert.Equal(t, models.ImportanceLow, form4.Importance)
	assert.Equal(t, "AAPL Insider Transaction (Form 4)", form4.Title)

	// The CIK mapping is fetched once and cached.
	_, err = adapter.Fetch(context.Background(), models.Scope{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), mappingFetches.Load())
}

func TestEdgarFetch_UnknownTicker(t *testing.T) {
	adapter := newEdgarAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/company_tickers.json", r.URL.Path)
		writeTickerMapping(w)
	})

	_, err := adapter.Fetch(context.Background(), models.Scope{Ticker: "ZZZZ"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CIK mapping")
}

func TestEdgarFetch_RejectsMonthScope(t *testing.T) {
	adapter := newEdgarAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := adapter.Fetch(context.Background(), models.Scope{
		Month: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestEdgarFetch_ForbiddenMeansBadUserAgent(t *testing.T) {
	adapter := newEdgarAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := adapter.Fetch(context.Background(), models.Scope{Ticker: "AAPL"})
	var authErr *UnauthorizedError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "edgar", authErr.Source)
}

func TestEdgarFetch_RateLimited(t *testing.T) {
	adapter := newEdgarAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := adapter.Fetch(context.Background(), models.Scope{Ticker: "AAPL"})
	var rateErr *RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, "edgar", rateErr.Source)
}

func TestFilingURL_NoPrimaryDocument(t *testing.T) {
	url := filingURL(320193, "0000320193-26-000012", "")
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000032019326000012", url)
}
