// Package tokenstore keeps OAuth tokens per platform account. Redis is the
// primary backend so tokens survive process restarts; a process-local map
// takes over while redis is unreachable.
package tokenstore

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no token is stored for an account.
var ErrNotFound = errors.New("token not found")

type Store interface {
	Get(ctx context.Context, accountID string) (*oauth2.Token, error)
	Set(ctx context.Context, accountID string, token *oauth2.Token) error
	Clear(ctx context.Context, accountID string) error
}
