package journal

import (
	"context"
	"sync"
	"time"

	"journal-sync/internal/logger"
	"journal-sync/internal/model"

	"github.com/rs/zerolog"
)

type StatsLoader interface {
	LoadStats(ctx context.Context, q model.StatsQuery) (*model.JournalStats, error)
}

// StatsService keeps the latest aggregate stats of a journal view.
type StatsService struct {
	gateway  StatsLoader
	query    model.StatsQuery
	reporter Reporter
	log      zerolog.Logger

	mu        sync.RWMutex
	latest    *model.JournalStats
	fetchedAt time.Time
	refreshes int
}

func NewStatsService(gateway StatsLoader, query model.StatsQuery, reporter Reporter) *StatsService {
	return &StatsService{
		gateway:  gateway,
		query:    query,
		reporter: orNop(reporter),
		log:      logger.For("stats"),
	}
}

// Refresh refetches stats; a failure keeps the previous result.
func (s *StatsService) Refresh(ctx context.Context) error {
	stats, err := s.gateway.LoadStats(ctx, s.query)
	if err != nil {
		s.log.Error().Err(err).Int64("group_id", s.query.GroupID).Msg("Failed to load stats")
		s.reporter.Report(ctx, failure(model.OpLoadStats, nil, err))
		return err
	}

	s.mu.Lock()
	s.latest = stats
	s.fetchedAt = time.Now()
	s.refreshes++
	s.mu.Unlock()

	s.log.Debug().Int64("group_id", s.query.GroupID).Int("students", len(stats.Students)).Msg("Stats refreshed")
	return nil
}

func (s *StatsService) Latest() (*model.JournalStats, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.fetchedAt, s.latest != nil
}

// Refreshes counts successful refreshes.
func (s *StatsService) Refreshes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshes
}
