// Package api exposes the HTTP surface: platform action webhooks, the OAuth
// install flow, and an API-key protected admin API over the transfer history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/niteshatinception/for-monday/internal/breaker"
	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/errclass"
	"github.com/niteshatinception/for-monday/internal/export"
	"github.com/niteshatinception/for-monday/internal/metrics"
	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/pipeline"
)

// TransferHandler is the scenario surface implemented by the transfer service.
type TransferHandler interface {
	ColumnToColumn(ctx context.Context, token string, payload models.WebhookPayload) (int, error)
	ItemToItem(ctx context.Context, token string, payload models.WebhookPayload) (int, error)
	BoardToBoard(ctx context.Context, token string, payload models.WebhookPayload) (int, error)
	UpdateToFiles(ctx context.Context, token string, payload models.WebhookPayload) (int, error)
}

// InstallHandler is the OAuth lifecycle surface implemented by the auth
// service.
type InstallHandler interface {
	InstallURL(state string) string
	CompleteInstall(ctx context.Context, code, state string) (string, error)
	Uninstall(ctx context.Context, accountID string) error
}

// HistoryStore reads the transfer history log.
type HistoryStore interface {
	ListTransfers(ctx context.Context, limit int) ([]models.TransferRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// StatusSource reports in-flight pipeline state.
type StatusSource interface {
	Snapshot() []pipeline.ItemStatus
	CircuitSnapshot() []breaker.Monitor
}

// MetricSource reports the in-memory counters.
type MetricSource interface {
	All() map[string]metrics.Bucket
}

type HTTPServer struct {
	cfg       config.APIConfig
	transfers TransferHandler
	installs  InstallHandler
	history   HistoryStore
	status    StatusSource
	tracker   MetricSource
	server    *http.Server
	auth      *HTTPAuth
	logger    zerolog.Logger

	now func() time.Time
}

func NewHTTPServer(
	cfg config.APIConfig,
	signingSecret string,
	transfers TransferHandler,
	installs InstallHandler,
	history HistoryStore,
	status StatusSource,
	tracker MetricSource,
	logger *zerolog.Logger,
) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:       cfg,
		transfers: transfers,
		installs:  installs,
		history:   history,
		status:    status,
		tracker:   tracker,
		auth:      NewHTTPAuth(cfg),
		logger:    base,
		now:       time.Now,
	}

	webhook := newWebhookAuth(signingSecret)

	mux := http.NewServeMux()
	mux.Handle("/monday/execute_action/column_to_column", webhook.Wrap(srv.webhookHandler(srv.transfers.ColumnToColumn)))
	mux.Handle("/monday/execute_action/item_to_item", webhook.Wrap(srv.webhookHandler(srv.transfers.ItemToItem)))
	mux.Handle("/monday/execute_action/board_to_board", webhook.Wrap(srv.webhookHandler(srv.transfers.BoardToBoard)))
	mux.Handle("/monday/execute_action/update_to_files", webhook.Wrap(srv.webhookHandler(srv.transfers.UpdateToFiles)))
	mux.Handle("/monday/uninstall", webhook.Wrap(http.HandlerFunc(srv.handleUninstall)))

	mux.HandleFunc("/oauth/install", srv.handleInstall)
	mux.HandleFunc("/oauth/callback", srv.handleOAuthCallback)

	mux.Handle("/api/v1/transfers", srv.auth.Wrap(http.HandlerFunc(srv.handleTransfers)))
	mux.Handle("/api/v1/transfers/export", srv.auth.Wrap(http.HandlerFunc(srv.handleTransfersExport)))
	mux.Handle("/api/v1/pipeline/status", srv.auth.Wrap(http.HandlerFunc(srv.handlePipelineStatus)))

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", srv.handleHealthz)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

type scenarioFunc func(ctx context.Context, token string, payload models.WebhookPayload) (int, error)

// webhookHandler decodes and validates an action webhook, then hands the
// payload to one scenario. The synchronous contract is only "N files queued"
// or a validation/auth error; transfer outcomes never surface here.
func (s *HTTPServer) webhookHandler(run scenarioFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		metrics.IncHTTP(r.URL.Path)

		var req models.WebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		token := req.Payload.ShortLivedToken
		if token == "" {
			writeError(w, http.StatusUnauthorized, "no usable credential in payload")
			return
		}

		queued, err := run(r.Context(), token, req.Payload)
		if err != nil {
			if errclass.KindOf(err) == errclass.KindAuth {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"queued": queued})
	})
}

func (s *HTTPServer) handleUninstall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP(r.URL.Path)

	accountID := accountIDFromContext(r.Context())
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "uninstall webhook carries no account id")
		return
	}
	if err := s.installs.Uninstall(r.Context(), accountID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *HTTPServer) handleInstall(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP(r.URL.Path)
	state := r.URL.Query().Get("state")
	http.Redirect(w, r, s.installs.InstallURL(state), http.StatusFound)
}

func (s *HTTPServer) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP(r.URL.Path)

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	accountID, err := s.installs.CompleteInstall(r.Context(), code, r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "installed", "account_id": accountID})
}

func (s *HTTPServer) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.history.ListTransfers(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.history.CountByOutcome(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transfers": records,
		"totals":    counts,
	})
}

func (s *HTTPServer) handleTransfersExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.history.ListTransfers(r.Context(), 10000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.now())))
	if err := export.WriteTransfers(w, records); err != nil {
		s.logger.Error().Err(err).Msg("Failed to stream transfer export")
	}
}

func (s *HTTPServer) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    s.status.Snapshot(),
		"circuits": s.status.CircuitSnapshot(),
		"metrics":  s.tracker.All(),
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
