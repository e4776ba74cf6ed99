package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("user: %w", ErrNotFound), http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, ContentTypeProblem, rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorHidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Email string `json:"email"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","role":"ADMIN"}`))
	assert.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "a@b.c", target.Email)
}
