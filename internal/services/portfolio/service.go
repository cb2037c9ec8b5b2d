// Package portfolio manages (subscriber, ticker) subscriptions. Subscribing
// seeds refresh tasks for every ticker-bound source so new tickers get data
// on the next scheduler tick; unsubscribing cancels the pending tasks when
// no other subscriber still wants the ticker.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

// Service implements portfolio subscription management.
type Service struct {
	subscriptions interfaces.SubscriptionStorage
	tasks         interfaces.TaskStorage
	tickerSources []string
	logger        arbor.ILogger
	now           func() time.Time
}

// NewService creates a portfolio service. tickerSources names the source
// adapters that operate on ticker scopes and therefore need a refresh task
// per subscribed ticker.
func NewService(
	subscriptions interfaces.SubscriptionStorage,
	tasks interfaces.TaskStorage,
	tickerSources []string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		subscriptions: subscriptions,
		tasks:         tasks,
		tickerSources: tickerSources,
		logger:        logger,
		now:           time.Now,
	}
}

// Subscribe adds a (subscriber, ticker) pair and seeds immediate refresh
// tasks for the ticker. Re-subscribing is idempotent.
func (s *Service) Subscribe(ctx context.Context, subscriber, ticker string) error {
	ticker = common.NormalizeTicker(ticker)
	if !common.IsValidTicker(ticker) {
		return fmt.Errorf("invalid ticker %q", ticker)
	}
	if subscriber == "" {
		return fmt.Errorf("subscriber is required")
	}

	now := s.now().UTC()
	if err := s.subscriptions.Add(ctx, &models.PortfolioSubscription{
		Subscriber: subscriber,
		Ticker:     ticker,
		CreatedAt:  now,
	}); err != nil {
		return err
	}

	for _, source := range s.tickerSources {
		key := models.TaskKey(source, ticker, time.Time{})
		existing, err := s.tasks.GetByKey(ctx, key)
		if err == nil && existing.State != models.TaskDone {
			// A pending, running, or dead-lettered task already covers
			// this key; dead letters stay parked for the operator.
			continue
		}
		if err := s.tasks.Save(ctx, models.NewTickerTask(source, ticker, now)); err != nil {
			return fmt.Errorf("failed to seed refresh task for %s: %w", ticker, err)
		}
	}

	s.logger.Info().
		Str("subscriber", subscriber).
		Str("ticker", ticker).
		Msg("Portfolio subscription added")
	return nil
}

// Unsubscribe removes a (subscriber, ticker) pair. Pending refresh tasks for
// the ticker are cancelled once no subscriber remains; running tasks finish
// and their results stay in the store.
func (s *Service) Unsubscribe(ctx context.Context, subscriber, ticker string) error {
	ticker = common.NormalizeTicker(ticker)
	if err := s.subscriptions.Remove(ctx, subscriber, ticker); err != nil {
		return err
	}

	remaining, err := s.subscriptions.ListTickers(ctx)
	if err != nil {
		return err
	}
	for _, t := range remaining {
		if t == ticker {
			s.logger.Debug().
				Str("ticker", ticker).
				Msg("Ticker still subscribed elsewhere, keeping refresh tasks")
			return nil
		}
	}

	cancelled, err := s.tasks.CancelPendingForTicker(ctx, ticker)
	if err != nil {
		return fmt.Errorf("failed to cancel refresh tasks for %s: %w", ticker, err)
	}

	s.logger.Info().
		Str("subscriber", subscriber).
		Str("ticker", ticker).
		Int("cancelled_tasks", cancelled).
		Msg("Portfolio subscription removed")
	return nil
}

// List returns one subscriber's subscriptions.
func (s *Service) List(ctx context.Context, subscriber string) ([]*models.PortfolioSubscription, error) {
	return s.subscriptions.ListBySubscriber(ctx, subscriber)
}

// SubscribedTickers returns the union of tickers across all subscribers.
func (s *Service) SubscribedTickers(ctx context.Context) ([]string, error) {
	return s.subscriptions.ListTickers(ctx)
}
