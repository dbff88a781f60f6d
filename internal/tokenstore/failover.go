package tokenstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// FailoverStore serves from the primary store until it errors, then switches
// to the fallback and probes the primary again after a minute.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FailoverStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("Primary token store failed, falling back to memory")
	s.isDown.Store(true)
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) shouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) > time.Minute {
		s.lastCheck = time.Now()
		return true
	}
	return false
}

func (s *FailoverStore) Get(ctx context.Context, accountID string) (*oauth2.Token, error) {
	if !s.isDown.Load() {
		token, err := s.primary.Get(ctx, accountID)
		if err == nil || errors.Is(err, ErrNotFound) {
			return token, err
		}
		s.markDown(err)
	} else if s.shouldProbe() {
		token, err := s.primary.Get(ctx, accountID)
		if err == nil || errors.Is(err, ErrNotFound) {
			s.isDown.Store(false)
			return token, err
		}
	}

	return s.fallback.Get(ctx, accountID)
}

func (s *FailoverStore) Set(ctx context.Context, accountID string, token *oauth2.Token) error {
	if !s.isDown.Load() {
		err := s.primary.Set(ctx, accountID, token)
		if err == nil {
			return nil
		}
		s.markDown(err)
	}

	return s.fallback.Set(ctx, accountID, token)
}

func (s *FailoverStore) Clear(ctx context.Context, accountID string) error {
	if !s.isDown.Load() {
		err := s.primary.Clear(ctx, accountID)
		if err == nil {
			// Clear the fallback too so a failover cannot resurrect the token.
			_ = s.fallback.Clear(ctx, accountID)
			return nil
		}
		s.markDown(err)
	}

	return s.fallback.Clear(ctx, accountID)
}
