package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"transitdocs/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(config.AnalysisConfig{BaseURL: srv.URL, TimeoutSec: 5})
}

func TestAnalyzeDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/analyze-document", r.URL.Path)

			var req analyzeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "report.pdf", req.Filename)
			assert.Equal(t, "focus on costs", req.Instruction)

			json.NewEncoder(w).Encode(map[string]string{
				"summary":         "Quarterly cost report",
				"department":      "Finance",
				"priority":        "Medium",
				"action_required": "Review",
			})
		})

		got, err := c.AnalyzeDocument(context.Background(), "data:application/pdf;base64,QQ==", "report.pdf", "focus on costs")
		require.NoError(t, err)
		assert.Equal(t, "Quarterly cost report", got.Summary)
		assert.Equal(t, "Finance", got.Department)
	})

	t.Run("error body surfaces message", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]string{"error": "model unavailable"})
		})

		_, err := c.AnalyzeDocument(context.Background(), "data:;base64,QQ==", "x.txt", "")
		var aerr *AnalysisError
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, http.StatusBadGateway, aerr.Status)
		assert.Contains(t, aerr.Error(), "model unavailable")
	})

	t.Run("non-JSON error body yields generic message", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		})

		_, err := c.AnalyzeDocument(context.Background(), "data:;base64,QQ==", "x.txt", "")
		var aerr *AnalysisError
		require.ErrorAs(t, err, &aerr)
		assert.Contains(t, aerr.Error(), "request failed")
	})
}

func TestGmailAuthURL(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/gmail/auth-url", r.URL.Path)
			assert.Equal(t, "user-42", r.URL.Query().Get("user_id"))
			json.NewEncoder(w).Encode(map[string]string{"auth_url": "https://accounts.example/auth", "state": "tok-1"})
		})

		got, err := c.GmailAuthURL(context.Background(), "user-42")
		require.NoError(t, err)
		assert.Equal(t, "https://accounts.example/auth", got.URL)
		assert.Equal(t, "tok-1", got.State)
	})

	t.Run("failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := c.GmailAuthURL(context.Background(), "user-42")
		var uerr *AuthURLError
		assert.ErrorAs(t, err, &uerr)
	})
}

func TestImportFromGmail(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var req importRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "tok-1", req.State)
			assert.Equal(t, DefaultImportQuery, req.Query)
			assert.Equal(t, DefaultImportMax, req.MaxResults)
			json.NewEncoder(w).Encode(map[string]int{"imported": 3})
		})

		got, err := c.ImportFromGmail(context.Background(), "tok-1", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Imported)
	})

	t.Run("failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid state"})
		})

		_, err := c.ImportFromGmail(context.Background(), "stale", "", 0)
		var ierr *ImportError
		require.ErrorAs(t, err, &ierr)
		assert.Contains(t, ierr.Error(), "invalid state")
	})
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})

	got, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got["status"])
}
