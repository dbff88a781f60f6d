package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niteshatinception/for-monday/internal/breaker"
	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/metrics"
	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/pipeline"
)

const testSigningSecret = "shh-signing"

type fakeTransfers struct {
	calls  []string
	tokens []string
}

func (f *fakeTransfers) run(name, token string) (int, error) {
	f.calls = append(f.calls, name)
	f.tokens = append(f.tokens, token)
	return 2, nil
}

func (f *fakeTransfers) ColumnToColumn(_ context.Context, token string, _ models.WebhookPayload) (int, error) {
	return f.run("column_to_column", token)
}

func (f *fakeTransfers) ItemToItem(_ context.Context, token string, _ models.WebhookPayload) (int, error) {
	return f.run("item_to_item", token)
}

func (f *fakeTransfers) BoardToBoard(_ context.Context, token string, _ models.WebhookPayload) (int, error) {
	return f.run("board_to_board", token)
}

func (f *fakeTransfers) UpdateToFiles(_ context.Context, token string, _ models.WebhookPayload) (int, error) {
	return f.run("update_to_files", token)
}

type fakeInstalls struct {
	uninstalled []string
	installed   []string
}

func (f *fakeInstalls) InstallURL(state string) string {
	return "https://auth.example/authorize?state=" + state
}

func (f *fakeInstalls) CompleteInstall(_ context.Context, code, _ string) (string, error) {
	f.installed = append(f.installed, code)
	return "acc-1", nil
}

func (f *fakeInstalls) Uninstall(_ context.Context, accountID string) error {
	f.uninstalled = append(f.uninstalled, accountID)
	return nil
}

type fakeHistory struct {
	records []models.TransferRecord
}

func (f *fakeHistory) ListTransfers(_ context.Context, limit int) ([]models.TransferRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeHistory) CountByOutcome(_ context.Context) (map[string]int64, error) {
	return map[string]int64{models.OutcomeCompleted: int64(len(f.records))}, nil
}

type fakeStatus struct{}

func (fakeStatus) Snapshot() []pipeline.ItemStatus {
	return []pipeline.ItemStatus{{Key: "42", Scenario: "column_to_column", Queued: 1, Busy: true}}
}

func (fakeStatus) CircuitSnapshot() []breaker.Monitor {
	return []breaker.Monitor{{Key: "file:42", Status: breaker.StatusClosed}}
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		HTTP: config.APIHTTPConfig{Port: 0},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "key-1", Extra: "extra-1", Name: "ops", Permissions: []string{permReadTransfers, permReadStatus}},
				{Key: "key-2", Extra: "extra-2", Name: "limited", Permissions: []string{permReadStatus}},
			},
		},
	}
}

func newTestServer(t *testing.T) (*HTTPServer, *fakeTransfers, *fakeInstalls) {
	t.Helper()
	transfers := &fakeTransfers{}
	installs := &fakeInstalls{}
	history := &fakeHistory{records: []models.TransferRecord{
		{TransferID: "tr-1", ItemID: 42, FileName: "a.pdf", Scenario: "column_to_column", Outcome: models.OutcomeCompleted, CreatedAt: time.Now()},
	}}
	srv := NewHTTPServer(testAPIConfig(), testSigningSecret, transfers, installs, history,
		fakeStatus{}, metrics.NewTracker(time.Hour, nil), nil)
	return srv, transfers, installs
}

func signWebhookToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"accountId": 777,
		"userId":    55,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func webhookBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(models.WebhookRequest{Payload: models.WebhookPayload{
		InputFields: models.InputFields{
			BoardID:      7,
			ItemID:       42,
			SourceColumn: "files",
			TargetColumn: "files_dest",
			Action:       models.ActionCopy,
		},
		ShortLivedToken: "short-tok",
		UserID:          55,
	}})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestWebhookQueuesTransfers(t *testing.T) {
	srv, transfers, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/monday/execute_action/column_to_column", webhookBody(t))
	req.Header.Set("Authorization", signWebhookToken(t, testSigningSecret))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["queued"])
	assert.Equal(t, []string{"column_to_column"}, transfers.calls)
	assert.Equal(t, []string{"short-tok"}, transfers.tokens)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, transfers, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/monday/execute_action/item_to_item", webhookBody(t))
	req.Header.Set("Authorization", signWebhookToken(t, "wrong-secret"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, transfers.calls)
}

func TestWebhookRejectsMissingToken(t *testing.T) {
	srv, transfers, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/monday/execute_action/board_to_board", webhookBody(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, transfers.calls)
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	srv, transfers, _ := newTestServer(t)

	body, err := json.Marshal(models.WebhookRequest{Payload: models.WebhookPayload{
		InputFields:     models.InputFields{ItemID: 42}, // board and columns absent
		ShortLivedToken: "short-tok",
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/monday/execute_action/column_to_column", bytes.NewBuffer(body))
	req.Header.Set("Authorization", signWebhookToken(t, testSigningSecret))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, transfers.calls, "validation failures queue nothing")
}

func TestWebhookRejectsPayloadWithoutCredential(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, err := json.Marshal(models.WebhookRequest{Payload: models.WebhookPayload{
		InputFields: models.InputFields{
			BoardID: 7, ItemID: 42, SourceColumn: "files", TargetColumn: "files_dest",
		},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/monday/execute_action/column_to_column", bytes.NewBuffer(body))
	req.Header.Set("Authorization", signWebhookToken(t, testSigningSecret))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUninstallClearsAccount(t *testing.T) {
	srv, _, installs := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/monday/uninstall", bytes.NewBufferString("{}"))
	req.Header.Set("Authorization", signWebhookToken(t, testSigningSecret))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"777"}, installs.uninstalled)
}

func TestOAuthCallback(t *testing.T) {
	srv, _, installs := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=s1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc"}, installs.installed)
}

func TestOAuthCallbackRequiresCode(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminTransfersRequiresAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil)
	req.Header.Set("x-api-key", "key-1")
	req.Header.Set("x-api-extra", "not-the-extra")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminTransfersList(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil)
	req.Header.Set("x-api-key", "key-1")
	req.Header.Set("x-api-extra", "extra-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Transfers []models.TransferRecord `json:"transfers"`
		Totals    map[string]int64        `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, "tr-1", resp.Transfers[0].TransferID)
	assert.EqualValues(t, 1, resp.Totals[models.OutcomeCompleted])
}

func TestAdminPermissionDenied(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil)
	req.Header.Set("x-api-key", "key-2")
	req.Header.Set("x-api-extra", "extra-2")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, "key-2 may not read transfers")
}

func TestAdminTransfersExport(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/export", nil)
	req.Header.Set("x-api-key", "key-1")
	req.Header.Set("x-api-extra", "extra-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "transfers_export_")
	assert.NotZero(t, rec.Body.Len())
}

func TestAdminPipelineStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/status", nil)
	req.Header.Set("x-api-key", "key-2")
	req.Header.Set("x-api-extra", "extra-2")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items    []pipeline.ItemStatus `json:"items"`
		Circuits []breaker.Monitor     `json:"circuits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "42", resp.Items[0].Key)
	require.Len(t, resp.Circuits, 1)
	assert.Equal(t, breaker.StatusClosed, resp.Circuits[0].Status)
}

func TestAdminRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}

	srv := NewHTTPServer(cfg, testSigningSecret, &fakeTransfers{}, &fakeInstalls{},
		&fakeHistory{}, fakeStatus{}, metrics.NewTracker(time.Hour, nil), nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/status", nil)
		req.Header.Set("x-api-key", "key-1")
		req.Header.Set("x-api-extra", "extra-1")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
