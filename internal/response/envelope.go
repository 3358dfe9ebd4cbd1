// Package response defines the JSON envelope every API response is wrapped in.
//
// Success bodies carry data and optional list metadata; failure bodies carry a
// non-empty list of errors whose first element is the primary cause. Both carry
// the request id assigned by the outermost middleware and a server timestamp.
package response

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Meta describes a list payload.
type Meta struct {
	Total   int `json:"total"`
	Page    int `json:"page,omitempty"`
	PerPage int `json:"perPage,omitempty"`
}

type Success struct {
	Data      any       `json:"data"`
	Meta      *Meta     `json:"meta,omitempty"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError is one entry of a failure envelope. Target names the offending
// input field or path when there is one.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
	Details []any  `json:"details,omitempty"`
	DocURL  string `json:"docUrl,omitempty"`
}

type Failure struct {
	Errors    []APIError `json:"errors"`
	RequestID string     `json:"requestId"`
	Timestamp time.Time  `json:"timestamp"`
}

const CodeInternal = "INTERNAL_ERROR"

type requestIDKey struct{}

// NewRequestID returns a fresh random request id.
func NewRequestID() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "" outside a request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Writer serialises envelopes. The zero value is usable.
type Writer struct {
	DocsBaseURL string
	Now         func() time.Time
}

func NewWriter(docsBaseURL string) *Writer {
	return &Writer{DocsBaseURL: strings.TrimRight(docsBaseURL, "/#"), Now: time.Now}
}

// JSON writes a success envelope. meta may be nil.
func (wr *Writer) JSON(w http.ResponseWriter, r *http.Request, status int, data any, meta *Meta) {
	wr.write(w, status, Success{
		Data:      data,
		Meta:      meta,
		RequestID: RequestID(r.Context()),
		Timestamp: wr.now(),
	})
}

// Error writes a failure envelope. A 2xx status or an empty error list is a
// programming error and is reported as INTERNAL_ERROR instead.
func (wr *Writer) Error(w http.ResponseWriter, r *http.Request, status int, errs ...APIError) {
	if len(errs) == 0 || status < http.StatusMultipleChoices {
		status = http.StatusInternalServerError
		errs = []APIError{{Code: CodeInternal, Message: "Internal server error"}}
	}
	out := make([]APIError, len(errs))
	for i, e := range errs {
		if e.DocURL == "" {
			e.DocURL = wr.DocURL(e.Code)
		}
		out[i] = e
	}
	wr.write(w, status, Failure{
		Errors:    out,
		RequestID: RequestID(r.Context()),
		Timestamp: wr.now(),
	})
}

// Redirect answers with 303 See Other to location, still carrying a failure
// envelope so API clients that do not follow redirects see why.
func (wr *Writer) Redirect(w http.ResponseWriter, r *http.Request, location string, apiErr APIError) {
	w.Header().Set("Location", location)
	wr.Error(w, r, http.StatusSeeOther, apiErr)
}

// NoContent writes a bodiless 204.
func (wr *Writer) NoContent(w http.ResponseWriter) {
	w.Header().Del("Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

// DocURL links an error code to its documentation anchor.
func (wr *Writer) DocURL(code string) string {
	if wr.DocsBaseURL == "" || code == "" {
		return ""
	}
	return wr.DocsBaseURL + "#" + strings.ToLower(code)
}

func (wr *Writer) now() time.Time {
	if wr.Now == nil {
		return time.Now().UTC()
	}
	return wr.Now().UTC()
}

func (wr *Writer) write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
