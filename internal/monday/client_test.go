package monday

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/errclass"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.MondayConfig{
		APIURL:     server.URL,
		FileAPIURL: server.URL + "/file",
		TimeoutSec: 5,
	}, nil)
	return client, server
}

func TestResolveAsset(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-1", r.Header.Get("Authorization"))

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "assets")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"assets": []map[string]any{{
					"id":             "777",
					"name":           "report.pdf",
					"public_url":     "https://files.example/777",
					"file_extension": ".pdf",
					"file_size":      1024,
				}},
			},
		})
	})

	asset, err := client.ResolveAsset(context.Background(), "token-1", 777)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", asset.Name)
	assert.True(t, asset.HasPublicURL())
	assert.EqualValues(t, 1024, asset.FileSize)
}

func TestResolveAssetWithoutPublicURL(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"assets": []map[string]any{{"id": "777", "name": "fresh.pdf"}},
			},
		})
	})

	asset, err := client.ResolveAsset(context.Background(), "t", 777)
	require.NoError(t, err)
	assert.False(t, asset.HasPublicURL())
}

func TestQueryClassifiesComplexityError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code":    "ComplexityException",
			"error_message": "Complexity budget exhausted, reset in 12 seconds",
		})
	})

	err := client.Query(context.Background(), "t", "query {}", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errclass.KindComplexity, errclass.KindOf(err))
}

func TestQueryClassifiesAuthError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.Query(context.Background(), "bad", "query {}", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errclass.KindAuth, errclass.KindOf(err))
}

func TestQueryClassifiesColumnLimitError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{
				"message": "value exceeded max value for column files",
			}},
		})
	})

	err := client.Query(context.Background(), "t", "mutation {}", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errclass.KindColumnLimit, errclass.KindOf(err))
}

func TestColumnValue(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"items": []map[string]any{{
					"id":   "42",
					"name": "invoice row",
					"column_values": []map[string]any{
						{"id": "files", "value": `{"files":[{"assetId":777,"name":"a.pdf"}]}`},
					},
				}},
			},
		})
	})

	value, err := client.ColumnValue(context.Background(), "t", 42, "files")
	require.NoError(t, err)
	assert.Contains(t, value, `"assetId":777`)
}

func TestAddFileToColumn(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(scratch, []byte("%PDF-1.4 test"), 0o644))

	var gotQuery, gotFile string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file" {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotQuery = r.FormValue("query")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFile = header.Filename

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"add_file_to_column": map[string]any{"id": "999"}},
		})
	})

	err := client.AddFileToColumn(context.Background(), "t", 42, "files_dest", scratch)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "add_file_to_column")
	assert.Contains(t, gotQuery, `"files_dest"`)
	assert.Equal(t, "doc.pdf", gotFile)
}

func TestClearColumnValue(t *testing.T) {
	var vars map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vars = req.Variables
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"change_column_value": map[string]any{"id": "42"}},
		})
	})

	err := client.ClearColumnValue(context.Background(), "t", 7, 42, "files")
	require.NoError(t, err)
	assert.Equal(t, "42", vars["itemId"])
	assert.JSONEq(t, `{"clear_all": true}`, vars["value"].(string))
}

func TestFindItemByName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"boards": []map[string]any{{
					"items_page": map[string]any{
						"items": []map[string]any{
							{"id": "1", "name": "alpha"},
							{"id": "2", "name": "beta"},
						},
					},
				}},
			},
		})
	})

	id, err := client.FindItemByName(context.Background(), "t", 7, "beta")
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)

	id, err = client.FindItemByName(context.Background(), "t", 7, "missing")
	require.NoError(t, err)
	assert.Zero(t, id)
}
