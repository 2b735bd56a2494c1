package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("missing url"), http.StatusBadRequest},
		{"forbidden", fmt.Errorf("host evil.test: %w", ErrForbidden), http.StatusForbidden},
		{"unreadable", fmt.Errorf("decode: %w", ErrUnreadableImage), http.StatusUnsupportedMediaType},
		{"upstream", fmt.Errorf("dial: %w", ErrUpstreamUnavailable), http.StatusBadGateway},
		{"timeout", fmt.Errorf("fetch: %w", ErrTimeout), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestWriteError_UsesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, Invalid("missing url"))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 9400, resp.Errors[0].Code)
	assert.Contains(t, resp.Errors[0].Message, "missing url")
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("open /secret/path: permission denied"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "internal server error", resp.Errors[0].Message)
}
