package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("writes status and content type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteJSON(rec, http.StatusTeapot, map[string]string{"k": "v"}))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"k":"v"}`, rec.Body.String())
	})

	t.Run("nil data writes empty body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteJSON(rec, http.StatusOK, nil))
		assert.Empty(t, rec.Body.String())
	})
}

func TestErrorWriters(t *testing.T) {
	cases := []struct {
		name      string
		write     func(w http.ResponseWriter) error
		status    int
		errorType string
	}{
		{"bad request", func(w http.ResponseWriter) error { return WriteBadRequest(w, "bad", nil) }, http.StatusBadRequest, "bad_request"},
		{"unauthorized", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") }, http.StatusUnauthorized, "unauthorized"},
		{"not found", func(w http.ResponseWriter) error { return WriteNotFound(w, "") }, http.StatusNotFound, "not_found"},
		{"bad gateway", func(w http.ResponseWriter) error { return WriteBadGateway(w, "", nil) }, http.StatusBadGateway, "bad_gateway"},
		{"service unavailable", func(w http.ResponseWriter) error { return WriteServiceUnavailable(w, "") }, http.StatusServiceUnavailable, "service_unavailable"},
		{"internal", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, tc.write(rec))

			assert.Equal(t, tc.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.errorType, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestWriteOK(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteOK(rec, map[string]int{"n": 1}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"n":1}}`, rec.Body.String())
}
