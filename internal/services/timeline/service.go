// Package timeline is the read path: every query the HTTP surface exposes
// goes through here, read-through the query cache onto the event store.
// Pipeline failures never surface to these calls; readers see whatever the
// store currently holds.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
	"github.com/ihaichao/stock-pulse/internal/services/querycache"
)

// upcomingWindow is how far ahead the upcoming view reaches.
const upcomingWindow = 7 * 24 * time.Hour

// Service answers timeline queries.
type Service struct {
	events        interfaces.EventStorage
	subscriptions interfaces.SubscriptionStorage
	cache         *querycache.Cache
	summaries     interfaces.SummaryService
	ttl           common.CacheConfig
	logger        arbor.ILogger
	now           func() time.Time
}

// NewService creates a timeline service.
func NewService(
	events interfaces.EventStorage,
	subscriptions interfaces.SubscriptionStorage,
	cache *querycache.Cache,
	summaries interfaces.SummaryService,
	ttl common.CacheConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		events:        events,
		subscriptions: subscriptions,
		cache:         cache,
		summaries:     summaries,
		ttl:           ttl,
		logger:        logger,
		now:           time.Now,
	}
}

// GetUpcoming returns the next seven days of events for a subscriber:
// events on their subscribed tickers plus all macro events, ordered by date.
func (s *Service) GetUpcoming(ctx context.Context, subscriber string) ([]*models.Event, error) {
	key := querycache.KeyUpcoming(subscriber)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]*models.Event), nil
	}

	now := s.now().UTC()
	from := dayStart(now)
	to := from.Add(upcomingWindow)

	all, err := s.events.Query(ctx, interfaces.EventFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}

	subscribed, err := s.subscribedSet(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	events := make([]*models.Event, 0, len(all))
	for _, event := range all {
		if event.Ticker == "" || subscribed[event.Ticker] {
			events = append(events, event)
		}
	}

	s.cache.Set(key, events, s.ttl.Upcoming())
	return events, nil
}

// GetToday returns all of today's events (UTC day boundaries).
func (s *Service) GetToday(ctx context.Context) ([]*models.Event, error) {
	if cached, ok := s.cache.Get(querycache.KeyToday); ok {
		return cached.([]*models.Event), nil
	}

	from := dayStart(s.now().UTC())
	to := from.Add(24 * time.Hour)

	events, err := s.events.Query(ctx, interfaces.EventFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to query today's events: %w", err)
	}

	s.cache.Set(querycache.KeyToday, events, s.ttl.Today())
	return events, nil
}

// GetYesterday returns all of yesterday's events.
func (s *Service) GetYesterday(ctx context.Context) ([]*models.Event, error) {
	if cached, ok := s.cache.Get(querycache.KeyYesterday); ok {
		return cached.([]*models.Event), nil
	}

	to := dayStart(s.now().UTC())
	from := to.Add(-24 * time.Hour)

	events, err := s.events.Query(ctx, interfaces.EventFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to query yesterday's events: %w", err)
	}

	s.cache.Set(querycache.KeyYesterday, events, s.ttl.Yesterday())
	return events, nil
}

// GetByTicker returns every stored event for a ticker.
func (s *Service) GetByTicker(ctx context.Context, ticker string) ([]*models.Event, error) {
	ticker = common.NormalizeTicker(ticker)
	key := querycache.KeyTicker(ticker)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]*models.Event), nil
	}

	events, err := s.events.Query(ctx, interfaces.EventFilter{Ticker: ticker})
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", ticker, err)
	}

	s.cache.Set(key, events, s.ttl.Ticker())
	return events, nil
}

// GetByMonth returns the macro events for a calendar month.
func (s *Service) GetByMonth(ctx context.Context, month time.Time) ([]*models.Event, error) {
	month = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	key := querycache.KeyMonth(month)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]*models.Event), nil
	}

	from := month
	to := month.AddDate(0, 1, 0)

	events, err := s.events.Query(ctx, interfaces.EventFilter{
		MacroOnly: true,
		Types:     []models.EventType{models.EventTypeMacro},
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query macro events for %s: %w", month.Format("2006-01"), err)
	}

	s.cache.Set(key, events, s.ttl.Month())
	return events, nil
}

// GetEvent returns one event by ID with both summary levels populated. The
// detail summary is generated on demand; single-event reads bypass the
// query cache.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.summaries != nil {
		if _, err := s.summaries.GetSummary(ctx, event, models.SummaryShort); err != nil {
			s.logger.Warn().Err(err).Str("event_id", id).Msg("Short summary lookup failed")
		}
		if _, err := s.summaries.GetSummary(ctx, event, models.SummaryDetail); err != nil {
			s.logger.Warn().Err(err).Str("event_id", id).Msg("Detail summary lookup failed")
		}
	}

	return event, nil
}

// GetDailySummary builds the daily digest for a subscriber: today's events
// bucketed into portfolio and macro groups, portfolio first.
func (s *Service) GetDailySummary(ctx context.Context, subscriber string) (*models.DailySummary, error) {
	day := dayStart(s.now().UTC())
	key := querycache.KeyDailySummary(day, subscriber)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*models.DailySummary), nil
	}

	today, err := s.GetToday(ctx)
	if err != nil {
		return nil, err
	}

	subscribed, err := s.subscribedSet(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	summary := &models.DailySummary{
		Date:   day.Format("2006-01-02"),
		Events: []*models.Event{},
	}
	for _, event := range today {
		switch {
		case event.Ticker != "" && subscribed[event.Ticker]:
			summary.PortfolioEvents = append(summary.PortfolioEvents, event)
		case event.Ticker == "":
			summary.MacroEvents = append(summary.MacroEvents, event)
		default:
			// Other subscribers' ticker events are not part of this summary
			continue
		}
		if event.Importance == models.ImportanceHigh {
			summary.HighImportanceCount++
		}
	}

	summary.Events = append(summary.Events, summary.PortfolioEvents...)
	summary.Events = append(summary.Events, summary.MacroEvents...)
	sortByImportance(summary.Events)
	summary.TotalEvents = len(summary.Events)

	s.cache.Set(key, summary, s.ttl.DailySummary())
	return summary, nil
}

func (s *Service) subscribedSet(ctx context.Context, subscriber string) (map[string]bool, error) {
	subs, err := s.subscriptions.ListBySubscriber(ctx, subscriber)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	set := make(map[string]bool, len(subs))
	for _, sub := range subs {
		set[sub.Ticker] = true
	}
	return set, nil
}

// sortByImportance orders high before medium before low, stable so the
// portfolio-first grouping survives.
func sortByImportance(events []*models.Event) {
	rank := map[models.Importance]int{
		models.ImportanceHigh:   0,
		models.ImportanceMedium: 1,
		models.ImportanceLow:    2,
	}
	sort.SliceStable(events, func(i, j int) bool {
		return rank[events[i].Importance] < rank[events[j].Importance]
	})
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
