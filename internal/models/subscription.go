package models

import "time"

// PortfolioSubscription is a (subscriber, ticker) pair. Subscriptions are
// created by the portfolio collaborator; the aggregation core reads them to
// compute the refresh set and to scope portfolio-aware queries.
type PortfolioSubscription struct {
	Subscriber string    `json:"subscriber" badgerhold:"index"`
	Ticker     string    `json:"ticker" badgerhold:"index"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubscriptionKey builds the storage key for a subscription pair.
func SubscriptionKey(subscriber, ticker string) string {
	return subscriber + "|" + ticker
}
