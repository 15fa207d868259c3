package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		title  string
	}{
		{"not found", ErrNotFound, http.StatusNotFound, "Not Found"},
		{"duplicate", ErrDuplicate, http.StatusConflict, "Duplicate"},
		{"validation", fmt.Errorf("document id: %w", ErrValidation), http.StatusBadRequest, "Validation Failed"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "Forbidden"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{"unknown", errors.New("pg: connection reset"), http.StatusInternalServerError, "Internal Error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tc.title, problem.Title)
			assert.Equal(t, tc.status, problem.Status)
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pg: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_ids":[1,2]}`))
	var body struct {
		UserIDs []int64 `json:"user_ids"`
	}
	require.NoError(t, DecodeJSON(req, &body))
	assert.Equal(t, []int64{1, 2}, body.UserIDs)

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Error(t, DecodeJSON(bad, &body))
}
