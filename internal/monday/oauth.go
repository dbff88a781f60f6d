package monday

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/niteshatinception/for-monday/internal/config"
)

// OAuth wraps the platform's authorization-code exchange.
type OAuth struct {
	cfg *oauth2.Config
}

func NewOAuth(cfg config.MondayConfig) *OAuth {
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
	}
}

// AuthCodeURL builds the install-flow redirect URL.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange swaps an authorization code for a token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange oauth code: %w", err)
	}
	return token, nil
}
