package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// webhookClaims is what the platform signs into the Authorization header of
// action and lifecycle webhooks.
type webhookClaims struct {
	AccountID json.Number `json:"accountId"`
	UserID    json.Number `json:"userId"`
	jwt.RegisteredClaims
}

// webhookAuth verifies the HS256 signature the platform puts on every webhook
// using the app's signing secret.
type webhookAuth struct {
	secret []byte
}

func newWebhookAuth(signingSecret string) *webhookAuth {
	return &webhookAuth{secret: []byte(signingSecret)}
}

func (a *webhookAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims := &webhookClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		ctx := r.Context()
		if claims.AccountID != "" {
			ctx = context.WithValue(ctx, accountIDKey, claims.AccountID.String())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accountIDFromContext returns the verified account id, or "" outside a
// webhook request.
func accountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(accountIDKey).(string); ok {
		return v
	}
	return ""
}
