// Package transport defines the handler and filter contracts between the
// hosting layer and the sense dispatcher.
//
// A [Handler] turns an [api.Request] into an [api.Response]; the
// dispatcher is the final handler of every request. [Filter] values wrap
// handlers with cross-cutting behavior and are composed with [Chain].
// Built-in filters provide panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
//
// The HTTP binding lives in the http subpackage.
package transport
