package sheets

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
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestFirstSheetTitle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/spreadsheets/sheet-123", r.URL.Path)
		assert.Equal(t, "sheets.properties.title", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sheets": [{"properties": {"title": "Audit Q3"}}, {"properties": {"title": "Other"}}]}`))
	})

	title, err := c.FirstSheetTitle(context.Background(), "sheet-123")
	require.NoError(t, err)
	assert.Equal(t, "Audit Q3", title)
}

func TestFirstSheetTitle_NoSheets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.FirstSheetTitle(context.Background(), "sheet-123")
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v4/spreadsheets/sheet-123/values/'Audit'!A2:A", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range": "Audit!A2:A4", "values": [["a.example"], [], ["c.example", 2.5]]}`))
	})

	rows, err := c.Get(context.Background(), "sheet-123", "'Audit'!A2:A")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a.example"}, rows[0])
	assert.Empty(t, rows[1])
	assert.Equal(t, []string{"c.example", "2.5"}, rows[2])
}

func TestBatchUpdate(t *testing.T) {
	var got struct {
		ValueInputOption string `json:"valueInputOption"`
		Data             []struct {
			Range  string  `json:"range"`
			Values [][]any `json:"values"`
		} `json:"data"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v4/spreadsheets/sheet-123/values:batchUpdate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalUpdatedRows": 3}`))
	})

	err := c.BatchUpdate(context.Background(), "sheet-123", []ValueRange{
		{Range: "'Audit'!B2:N3", Values: [][]any{{2.1, "FAST"}, {"ERROR", ""}}},
		{Range: "'Audit'!B5:N5", Values: [][]any{{1.0}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "RAW", got.ValueInputOption)
	require.Len(t, got.Data, 2)
	assert.Equal(t, "'Audit'!B2:N3", got.Data[0].Range)
	assert.InDelta(t, 2.1, got.Data[0].Values[0][0], 1e-9)
	assert.Equal(t, "ERROR", got.Data[0].Values[1][0])
}

func TestBatchUpdate_Empty(t *testing.T) {
	c := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty batch")
	})
	assert.NoError(t, c.BatchUpdate(context.Background(), "sheet-123", nil))
}

func TestBatchUpdate_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "The caller does not have permission"}}`))
	})

	err := c.BatchUpdate(context.Background(), "sheet-123", []ValueRange{{Range: "A1", Values: [][]any{{"x"}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets: batch update")
}

func TestTokenSource_Validation(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_id": "id"}`), 0o600))
	_, err := tokenSource(context.Background(), path)
	assert.ErrorContains(t, err, "refresh_token")

	require.NoError(t, os.WriteFile(path, []byte(`{"client_id": "id", "client_secret": "s", "refresh_token": "r"}`), 0o600))
	ts, err := tokenSource(context.Background(), path)
	require.NoError(t, err)
	assert.NotNil(t, ts)

	_, err = tokenSource(context.Background(), filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestQuoteSheet(t *testing.T) {
	assert.Equal(t, "'Sheet1'", QuoteSheet("Sheet1"))
	assert.Equal(t, "'Bob''s Sites'", QuoteSheet("Bob's Sites"))
}
