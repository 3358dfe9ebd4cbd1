package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedWriter() *Writer {
	w := NewWriter("https://docs.example.com/errors/")
	w.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func requestWithID(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)
	return req.WithContext(WithRequestID(req.Context(), id))
}

func TestJSONWritesSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	fixedWriter().JSON(rec, requestWithID("req-1"), http.StatusOK, []string{"a"}, &Meta{Total: 1})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":["a"],"meta":{"total":1},"requestId":"req-1","timestamp":"2026-03-01T12:00:00Z"}`, rec.Body.String())
}

func TestJSONOmitsMetaWhenNil(t *testing.T) {
	rec := httptest.NewRecorder()
	fixedWriter().JSON(rec, requestWithID("req-2"), http.StatusCreated, map[string]any{"id": "n1"}, nil)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "meta")
	assert.NotContains(t, body, "errors")
	assert.Equal(t, "req-2", body["requestId"])
}

func TestErrorWritesFailureEnvelopeWithDocURL(t *testing.T) {
	rec := httptest.NewRecorder()
	fixedWriter().Error(rec, requestWithID("req-3"), http.StatusConflict, APIError{
		Code:    "VERSION_CONFLICT",
		Message: "Note was modified",
		Target:  "version",
		Details: []any{map[string]any{"version": 4}},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	var body Failure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "VERSION_CONFLICT", body.Errors[0].Code)
	assert.Equal(t, "version", body.Errors[0].Target)
	assert.Equal(t, "https://docs.example.com/errors#version_conflict", body.Errors[0].DocURL)
	assert.Equal(t, "req-3", body.RequestID)
	assert.Len(t, body.Errors[0].Details, 1)
}

func TestErrorNeverEmitsEmptyOrSuccessFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	fixedWriter().Error(rec, requestWithID("req-4"), http.StatusOK)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body Failure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, CodeInternal, body.Errors[0].Code)
}

func TestRedirectCarriesLocationAndEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	fixedWriter().Redirect(rec, requestWithID("req-5"), "/api/v1/notes", APIError{Code: "ALREADY_AUTHENTICATED", Message: "Already signed in"})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/v1/notes", rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), "ALREADY_AUTHENTICATED")
}

func TestNoContentHasNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	fixedWriter().NoContent(rec)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestDocURLDisabledWithoutBase(t *testing.T) {
	var w Writer
	assert.Empty(t, w.DocURL("NOT_FOUND"))
}

func TestRequestIDs(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	assert.Empty(t, RequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
