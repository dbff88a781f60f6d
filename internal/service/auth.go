package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/niteshatinception/for-monday/internal/monday"
	"github.com/niteshatinception/for-monday/internal/tokenstore"
)

// AuthService handles the app install and uninstall lifecycle: code exchange
// on install, token removal on uninstall.
type AuthService struct {
	oauth  *monday.OAuth
	tokens tokenstore.Store
	logger zerolog.Logger
}

func NewAuthService(oauth *monday.OAuth, tokens tokenstore.Store, logger *zerolog.Logger) *AuthService {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "auth_service").Logger()
	}
	return &AuthService{oauth: oauth, tokens: tokens, logger: base}
}

// InstallURL is where an install request gets redirected to authorize the app.
func (s *AuthService) InstallURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// CompleteInstall exchanges the callback code and stores the token under the
// account id the platform includes in the token response. The state parameter
// serves as a fallback identity for responses without one.
func (s *AuthService) CompleteInstall(ctx context.Context, code, state string) (string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	accountID := accountIDFromToken(token)
	if accountID == "" {
		accountID = state
	}
	if accountID == "" {
		return "", fmt.Errorf("token response carries no account identity")
	}

	if err := s.tokens.Set(ctx, accountID, token); err != nil {
		return "", fmt.Errorf("store token for account %s: %w", accountID, err)
	}
	s.logger.Info().Str("account_id", accountID).Msg("app installed, token stored")
	return accountID, nil
}

// Uninstall forgets the account's token.
func (s *AuthService) Uninstall(ctx context.Context, accountID string) error {
	if err := s.tokens.Clear(ctx, accountID); err != nil {
		return fmt.Errorf("clear token for account %s: %w", accountID, err)
	}
	s.logger.Info().Str("account_id", accountID).Msg("app uninstalled, token cleared")
	return nil
}

// Token returns the stored token for an account.
func (s *AuthService) Token(ctx context.Context, accountID string) (*oauth2.Token, error) {
	return s.tokens.Get(ctx, accountID)
}

func accountIDFromToken(token *oauth2.Token) string {
	switch v := token.Extra("account_id").(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
