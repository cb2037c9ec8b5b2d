package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihaichao/stock-pulse/internal/models"
)

func TestSubscriptionStorage_AddRemove(t *testing.T) {
	manager := newTestManager(t)
	store := manager.SubscriptionStorage()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "alice", Ticker: "AAPL"}))
	// Re-adding the same pair is idempotent
	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "alice", Ticker: "AAPL"}))
	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "alice", Ticker: "MSFT"}))
	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "bob", Ticker: "AAPL"}))

	subs, err := store.ListBySubscriber(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "AAPL", subs[0].Ticker)
	assert.Equal(t, "MSFT", subs[1].Ticker)

	require.NoError(t, store.Remove(ctx, "alice", "AAPL"))
	subs, err = store.ListBySubscriber(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	// Removing an absent pair is a no-op
	assert.NoError(t, store.Remove(ctx, "alice", "TSLA"))

	// Missing fields are rejected
	assert.Error(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "alice"}))
}

func TestSubscriptionStorage_ListTickers(t *testing.T) {
	manager := newTestManager(t)
	store := manager.SubscriptionStorage()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "alice", Ticker: "MSFT"}))
	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "alice", Ticker: "AAPL"}))
	require.NoError(t, store.Add(ctx, &models.PortfolioSubscription{Subscriber: "bob", Ticker: "AAPL"}))

	tickers, err := store.ListTickers(ctx)
	require.NoError(t, err)
	// Deduplicated across subscribers and sorted
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)
}
