// Package monday is a thin client for the work-management platform's GraphQL
// API: queries and mutations, asset URL resolution, multipart file upload and
// notifications. Errors crossing this boundary come back tagged with a
// structured kind so the pipeline never matches message text itself.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/errclass"
)

type Client struct {
	httpClient *http.Client
	apiURL     string
	fileAPIURL string
	logger     zerolog.Logger
}

func NewClient(cfg config.MondayConfig, logger *zerolog.Logger) *Client {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "monday").Logger()
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     cfg.APIURL,
		fileAPIURL: cfg.FileAPIURL,
		logger:     base,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data         json.RawMessage `json:"data"`
	Errors       []graphQLError  `json:"errors"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

// Query executes a GraphQL document and unmarshals the data field into out.
// out may be nil for mutations whose result is not needed.
func (c *Client) Query(ctx context.Context, token, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute graphql request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read graphql response: %w", err)
	}

	if err := classifyHTTPStatus(resp.StatusCode); err != nil {
		return err
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}

	if err := classifyAPIError(parsed); err != nil {
		return err
	}

	if out != nil && len(parsed.Data) > 0 {
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return fmt.Errorf("decode graphql data: %w", err)
		}
	}
	return nil
}

func classifyHTTPStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errclass.New(errclass.KindAuth, fmt.Sprintf("api returned status %d", status))
	case status == http.StatusTooManyRequests:
		return errclass.New(errclass.KindComplexity, "api rate limit reached")
	case status >= 500:
		return errclass.New(errclass.KindUnknown, fmt.Sprintf("api returned status %d", status))
	case status >= 400:
		return errclass.New(errclass.KindPermanent, fmt.Sprintf("api returned status %d", status))
	default:
		return nil
	}
}

func classifyAPIError(resp graphQLResponse) error {
	if resp.ErrorMessage != "" {
		return tagAPIError(resp.ErrorCode, resp.ErrorMessage)
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		return tagAPIError(first.Extensions.Code, first.Message)
	}
	return nil
}

func tagAPIError(code, message string) error {
	err := fmt.Errorf("api error: %s", message)
	lower := strings.ToLower(message)

	switch {
	case code == "ComplexityException", strings.Contains(lower, "complexity budget exhausted"):
		return errclass.Wrap(errclass.KindComplexity, err)
	case code == "UserUnauthorizedException", code == "InvalidTokenException",
		strings.Contains(lower, "not authenticated"):
		return errclass.Wrap(errclass.KindAuth, err)
	case code == "ColumnValueException" && strings.Contains(lower, "exceeded max value for column"),
		strings.Contains(lower, "exceeded max value for column"):
		return errclass.Wrap(errclass.KindColumnLimit, err)
	default:
		return errclass.Wrap(errclass.KindUnknown, err)
	}
}
