package models

// DailySummary is the "what you need to know today" digest: today's events
// split into portfolio and macro buckets, portfolio first.
type DailySummary struct {
	Date                string   `json:"date"`
	TotalEvents         int      `json:"total_events"`
	HighImportanceCount int      `json:"high_importance"`
	Events              []*Event `json:"events"`
	MacroEvents         []*Event `json:"macro_events"`
	PortfolioEvents     []*Event `json:"portfolio_events"`
}
