package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteOK(w, map[string]string{"result": "success"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)

	var response SuccessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	dataMap := response.Data.(map[string]interface{})
	assert.Equal(t, "success", dataMap["result"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		status   int
		wantType string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusUnprocessableEntity, "unprocessable_entity"},
		{http.StatusBadGateway, "bad_gateway"},
		{http.StatusServiceUnavailable, "service_unavailable"},
		{http.StatusInternalServerError, "internal_error"},
		{http.StatusTeapot, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, WriteError(w, tt.status, "boom", map[string]interface{}{"k": "v"}))

			assert.Equal(t, tt.status, w.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantType, response.Error)
			assert.Equal(t, "boom", response.Message)
			assert.Equal(t, "v", response.Details["k"])
		})
	}
}

func TestWriteTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteTypedError(w, http.StatusUnprocessableEntity, "empty_context", "no documents", nil))

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "empty_context", response.Error)
	assert.Nil(t, response.Details)
}

func TestDefaultMessages(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteUnauthorized(w, ""))
	assert.Contains(t, w.Body.String(), "Authentication required")

	w = httptest.NewRecorder()
	require.NoError(t, WriteForbidden(w, ""))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Access forbidden")

	w = httptest.NewRecorder()
	require.NoError(t, WriteNotFound(w, "no such conversation"))
	assert.Contains(t, w.Body.String(), "no such conversation")
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	decode := func(payload, contentType string) (body, error) {
		var dst body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		return dst, err
	}

	t.Run("valid", func(t *testing.T) {
		got, err := decode(`{"name":"alice"}`, "application/json; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := decode("", "application/json")
		assert.EqualError(t, err, "request body is required")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := decode(`{"name":"a","extra":1}`, "")
		assert.ErrorContains(t, err, "unknown field")
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := decode(`{"name":"a"}{"name":"b"}`, "")
		assert.ErrorContains(t, err, "single JSON object")
	})

	t.Run("wrong content type", func(t *testing.T) {
		_, err := decode(`{"name":"a"}`, "text/plain")
		assert.ErrorContains(t, err, "unsupported content type")
	})

	t.Run("too large", func(t *testing.T) {
		payload := `{"name":"` + strings.Repeat("x", MaxRequestBodyBytes) + `"}`
		_, err := decode(payload, "")
		assert.ErrorContains(t, err, "exceeds")
	})
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.Event("", "Hello"))
	require.NoError(t, sse.Event("", "line one\nline two"))
	require.NoError(t, sse.JSONEvent("error", map[string]string{"error": "generation_error"}))
	require.NoError(t, sse.Event("done", ""))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)

	want := "data: Hello\n\n" +
		"data: line one\ndata: line two\n\n" +
		"event: error\ndata: {\"error\":\"generation_error\"}\n\n" +
		"event: done\ndata: \n\n"
	assert.Equal(t, want, w.Body.String())
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestSSEWriter_Unsupported(t *testing.T) {
	_, err := NewSSEWriter(noFlushWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}
