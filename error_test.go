package jsandy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewError_SetsStatusFromKind(t *testing.T) {
	tests := []struct {
		name       string
		kind       ErrorKind
		wantStatus int
	}{
		{"schema mismatch", KindSchemaMismatch, http.StatusUnprocessableEntity},
		{"missing adapter", KindMissingAdapter, http.StatusServiceUnavailable},
		{"bad encoding", KindBadEncoding, http.StatusBadRequest},
		{"internal", KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewError(tt.kind, "boom")
			assert.Equal(t, err.StatusCode, tt.wantStatus)
			assert.Equal(t, err.Kind, tt.kind)
			assert.Equal(t, len(err.Details), 0)
		})
	}
}

func TestNewHttpError_CarriesExplicitStatus(t *testing.T) {
	err := NewHttpError(http.StatusTeapot, "no coffee")
	assert.Equal(t, err.StatusCode, http.StatusTeapot)
	assert.Equal(t, err.Kind, KindHttpError)
	assert.Equal(t, err.Message, "no coffee")
}

func TestError_WithDetailCapturesStack(t *testing.T) {
	err := NewError(KindInternal, "main").WithDetail(KindSchemaMismatch, "detail")
	assert.Equal(t, len(err.Details), 1)
	assert.Check(t, len(err.Details[0].Context.Stack) > 0)
}

func TestError_WithFieldRecordsFieldName(t *testing.T) {
	err := NewError(KindSchemaMismatch, "validation failed").WithField("email", "required")
	assert.Equal(t, len(err.Details), 1)
	assert.Equal(t, err.Details[0].Field, "email")
}

func TestTranslateError_PassesThroughAppError(t *testing.T) {
	original := NewHttpError(http.StatusForbidden, "nope")
	got := translateError(original)
	assert.Equal(t, got, original)
}

func TestTranslateError_WrapsPlainError(t *testing.T) {
	got := translateError(errors.New("ordinary failure"))
	assert.Equal(t, got.Kind, KindInternal)
	assert.Equal(t, got.StatusCode, http.StatusInternalServerError)
}

func TestWriteError_WritesPlainTextBodyAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, NewDefaultLogger(ErrorLevel), NewHttpError(http.StatusForbidden, "denied"))

	assert.Equal(t, rec.Code, http.StatusForbidden)
	assert.Equal(t, rec.Body.String(), "denied")
	assert.Equal(t, rec.Header().Get("X-Error-Kind"), string(KindHttpError))
}
