package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

// SubscriptionStorage implements the SubscriptionStorage interface for Badger
type SubscriptionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSubscriptionStorage creates a new SubscriptionStorage instance
func NewSubscriptionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SubscriptionStorage {
	return &SubscriptionStorage{
		db:     db,
		logger: logger,
	}
}

// Add inserts a subscription. Adding an existing pair is a no-op upsert.
func (s *SubscriptionStorage) Add(ctx context.Context, sub *models.PortfolioSubscription) error {
	if sub.Subscriber == "" || sub.Ticker == "" {
		return fmt.Errorf("subscriber and ticker are required")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	key := models.SubscriptionKey(sub.Subscriber, sub.Ticker)
	if err := s.db.Store().Upsert(key, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// Remove deletes a subscription pair. Removing an absent pair is a no-op.
func (s *SubscriptionStorage) Remove(ctx context.Context, subscriber, ticker string) error {
	key := models.SubscriptionKey(subscriber, ticker)
	if err := s.db.Store().Delete(key, &models.PortfolioSubscription{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// ListTickers returns the deduplicated union of tickers across subscribers,
// sorted for stable iteration.
func (s *SubscriptionStorage) ListTickers(ctx context.Context) ([]string, error) {
	var subs []models.PortfolioSubscription
	if err := s.db.Store().Find(&subs, nil); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	seen := make(map[string]bool, len(subs))
	var tickers []string
	for _, sub := range subs {
		if !seen[sub.Ticker] {
			seen[sub.Ticker] = true
			tickers = append(tickers, sub.Ticker)
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// ListBySubscriber returns one subscriber's subscriptions
func (s *SubscriptionStorage) ListBySubscriber(ctx context.Context, subscriber string) ([]*models.PortfolioSubscription, error) {
	var subs []models.PortfolioSubscription
	query := badgerhold.Where("Subscriber").Eq(subscriber).Index("Subscriber").SortBy("Ticker")
	if err := s.db.Store().Find(&subs, query); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	result := make([]*models.PortfolioSubscription, len(subs))
	for i := range subs {
		result[i] = &subs[i]
	}
	return result, nil
}
