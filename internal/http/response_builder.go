// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON and plain-text
// responses, so every handler sets headers and status the same way.

package http

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)

// ResponseBuilder provides a fluent API for building API responses.
type ResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		b.err = err
		return b
	}
	b.headers["Content-Type"] = contentTypeJSON
	b.body = buf.Bytes()
	return b
}

// Text sets a plain-text body.
func (b *ResponseBuilder) Text(content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentTypeText
	b.body = content
	return b
}

// Attachment marks the body as a download named filename.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	b.headers["Content-Disposition"] = mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	return b
}

// Write sends the built response to the http.ResponseWriter. A body that
// failed to encode turns into a 500.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		InternalServerError("failed to encode response").Write(w)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(ErrorBody{Error: message})
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
