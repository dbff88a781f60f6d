package tokenstore

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// MemoryStore is the in-process fallback used when redis is down or not
// configured. Tokens here do not survive a restart.
type MemoryStore struct {
	tokens sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (*oauth2.Token, error) {
	val, ok := s.tokens.Load(accountID)
	if !ok {
		return nil, ErrNotFound
	}
	return val.(*oauth2.Token), nil
}

func (s *MemoryStore) Set(ctx context.Context, accountID string, token *oauth2.Token) error {
	s.tokens.Store(accountID, token)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, accountID string) error {
	s.tokens.Delete(accountID)
	return nil
}
