// Package testutil provides shared helpers for handler tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
)

// NewTestRequest creates a test HTTP request with an optional body.
func NewTestRequest(method, target, body string) *http.Request {
	return httptest.NewRequest(method, target, strings.NewReader(body))
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Do runs one request through a handler and returns the recorder.
func Do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := NewTestRecorder()
	h.ServeHTTP(rec, NewTestRequest(method, target, body))
	return rec
}
