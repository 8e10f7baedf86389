// Package http serves the deal pages, the report downloads and the JSON API.
//
// This file implements a small fluent builder for non-page responses:
// JSON bodies, downloads and plain text.
package http

import (
	"bytes"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResponseBuilder collects status, headers and body before writing them once.
type ResponseBuilder struct {
	statusCode int
	headers    http.Header
	body       []byte
	err        error
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(http.Header),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers.Set(name, value)
	return b
}

// JSON encodes v with json-iterator. An encoding failure turns the
// response into a 500.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.err = err
		return b
	}
	b.headers.Set("Content-Type", "application/json; charset=utf-8")
	b.body = data
	return b
}

func (b *ResponseBuilder) HTML(body []byte) *ResponseBuilder {
	b.headers.Set("Content-Type", "text/html; charset=utf-8")
	b.body = body
	return b
}

func (b *ResponseBuilder) Text(s string) *ResponseBuilder {
	b.headers.Set("Content-Type", "text/plain; charset=utf-8")
	b.body = []byte(s)
	return b
}

// Attachment marks the body as a download named filename.
func (b *ResponseBuilder) Attachment(filename, contentType string, body *bytes.Buffer) *ResponseBuilder {
	b.headers.Set("Content-Type", contentType)
	b.headers.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	b.body = body.Bytes()
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	for name, values := range b.headers {
		w.Header()[name] = values
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// apiError is the JSON error envelope of /api/v1.
type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func JSONError(status int, message string) *ResponseBuilder {
	return NewResponse().Status(status).JSON(apiError{Error: message})
}
