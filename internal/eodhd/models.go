package eodhd

// EarningsEntry is a single row from the earnings calendar endpoint.
// Estimate and Actual are pointers so missing values survive the round
// trip as nil rather than zero.
type EarningsEntry struct {
	Code              string   `json:"code"`
	ReportDate        string   `json:"report_date"`
	Date              string   `json:"date"`
	BeforeAfterMarket string   `json:"before_after_market"`
	Currency          string   `json:"currency"`
	Actual            *float64 `json:"actual"`
	Estimate          *float64 `json:"estimate"`
	Difference        *float64 `json:"difference"`
	Percent           *float64 `json:"percent"`
	RevenueActual     *int64   `json:"revenue_actual"`
	RevenueEstimate   *int64   `json:"revenue_estimate"`
}

// EarningsCalendarResponse is the envelope returned by /calendar/earnings.
type EarningsCalendarResponse struct {
	Type     string          `json:"type"`
	Earnings []EarningsEntry `json:"earnings"`
}
