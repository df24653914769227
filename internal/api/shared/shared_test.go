package shared

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))

	ctx := SetTraceID(context.Background())
	first := GetTraceID(ctx)
	assert.Len(t, first, 2*traceIDLength)
	assert.NotEqual(t, first, GetTraceID(SetTraceID(context.Background())))
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil)
	req = req.WithContext(SetTraceID(req.Context()))
	rec := httptest.NewRecorder()

	RespondWithErrorAndLog(rec, req, http.StatusNotFound, "Task not found",
		errors.New("task not found: postgres://jobs:secret@db/coursework"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"error":"Task not found"`)
	assert.Contains(t, rec.Body.String(), GetTraceID(req.Context()))
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr error
		errText string
	}{
		{name: "valid", body: `{"name":"x"}`},
		{name: "empty", body: ``, wantErr: ErrEmptyBody},
		{name: "unknown field", body: `{"name":"x","extra":1}`, errText: "unknown field"},
		{name: "trailing data", body: `{"name":"x"}{"name":"y"}`, errText: "unexpected data"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), req, &p)
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, "x", p.Name)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
	}
	assert.Error(t, ValidateRequest(&payload{}))
	assert.NoError(t, ValidateRequest(&payload{Name: "x"}))
}
