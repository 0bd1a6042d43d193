package api

import (
	"net/http"
	"strings"
)

// Response describes the outcome of a dispatch. The Entity is serialized by
// the hosting transport: Atom model values are rendered as XML, []byte and
// io.Reader values are written as-is, *ErrorResponse values as JSON.
//
// A Response must not be modified once a Processor has returned it.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Entity      any
}

// ErrorDocument describes a failed request.
type ErrorDocument struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse wraps an ErrorDocument for JSON serialization as the top-level error body.
type ErrorResponse struct {
	Error *ErrorDocument `json:"error"`
}

// NewResponse creates a response with an empty header set.
func NewResponse(status int, entity any) *Response {
	return &Response{
		Status: status,
		Header: make(http.Header),
		Entity: entity,
	}
}

// OK creates a 200 response carrying entity.
func OK(entity any) *Response {
	return NewResponse(http.StatusOK, entity)
}

// Created creates a 201 response with a Location header.
func Created(location string, entity any) *Response {
	resp := NewResponse(http.StatusCreated, entity)
	if location != "" {
		resp.Header.Set("Location", location)
		resp.Header.Set("Content-Location", location)
	}
	return resp
}

// NoContent creates a 204 response.
func NoContent() *Response {
	return NewResponse(http.StatusNoContent, nil)
}

// NewErrorResponse creates a response carrying an error document.
func NewErrorResponse(status int, message string) *Response {
	if message == "" {
		message = http.StatusText(status)
	}
	return NewResponse(status, &ErrorResponse{Error: &ErrorDocument{
		Status:  status,
		Message: message,
	}})
}

// NotFound is the standard 404 response.
func NotFound() *Response {
	return NewErrorResponse(http.StatusNotFound, "")
}

// BadRequest is the standard 400 response.
func BadRequest() *Response {
	return NewErrorResponse(http.StatusBadRequest, "")
}

// ServerError is the generic 500 response. The error text is attached as
// diagnostic detail; the message stays generic.
func ServerError(err error) *Response {
	resp := NewErrorResponse(http.StatusInternalServerError, "")
	if err != nil {
		resp.Entity.(*ErrorResponse).Error.Detail = err.Error()
	}
	return resp
}

// MethodNotAllowed creates a 405 response listing the allowed methods.
func MethodNotAllowed(allow ...string) *Response {
	resp := NewErrorResponse(http.StatusMethodNotAllowed, "")
	resp.Header.Set("Allow", strings.Join(allow, ", "))
	return resp
}

// Options creates the 200 response to an OPTIONS request.
func Options(allow ...string) *Response {
	resp := NewResponse(http.StatusOK, nil)
	resp.Header.Set("Allow", strings.Join(allow, ", "))
	return resp
}

// ErrorDetail returns the error document carried by resp, or nil.
func (r *Response) ErrorDetail() *ErrorDocument {
	if r == nil {
		return nil
	}
	if er, ok := r.Entity.(*ErrorResponse); ok {
		return er.Error
	}
	return nil
}
