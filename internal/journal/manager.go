package journal

import (
	"context"
	"time"

	"journal-sync/internal/logger"
	"journal-sync/pkg/errors"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Manager owns the live journal sessions. Idle sessions expire after the TTL
// and are closed on eviction.
type Manager struct {
	gateway  Gateway
	opts     SessionOptions
	sessions *cache.Cache
	ttl      time.Duration
	log      zerolog.Logger
}

func NewManager(gateway Gateway, ttl time.Duration, opts SessionOptions) *Manager {
	sessions := cache.New(ttl, ttl/2)
	sessions.OnEvicted(func(_ string, v interface{}) {
		v.(*Session).Close()
	})
	return &Manager{
		gateway:  gateway,
		opts:     opts,
		sessions: sessions,
		ttl:      ttl,
		log:      logger.For("journal_manager"),
	}
}

func (m *Manager) Open(ctx context.Context, params SessionParams) (*Session, error) {
	s := NewSession(uuid.NewString(), params, m.gateway, m.opts)
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}
	m.sessions.Set(s.ID(), s, cache.DefaultExpiration)
	m.log.Debug().Str("session_id", s.ID()).Int("active", m.sessions.ItemCount()).Msg("Session registered")
	return s, nil
}

// Get returns a live session and extends its lifetime.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	s := v.(*Session)
	m.sessions.Set(id, s, cache.DefaultExpiration)
	return s, nil
}

func (m *Manager) Close(id string) error {
	if _, ok := m.sessions.Get(id); !ok {
		return errors.ErrSessionNotFound
	}
	m.sessions.Delete(id)
	return nil
}

func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

func (m *Manager) CloseAll() {
	for id := range m.sessions.Items() {
		m.sessions.Delete(id)
	}
}
