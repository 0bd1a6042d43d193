// Package api defines the core protocol types for the sense AtomPub server.
//
// This package provides the values that flow through request dispatch:
// the classified [Target] of a request, the [Request] itself, the
// [Response] handed back to the hosting transport, and [StatusError],
// the error type that carries an explicit HTTP status. It also holds a
// small Atom/AtomPub entity model (feeds, entries, categories and service
// documents) that serializes with encoding/xml.
//
// The package performs no I/O and has a single external dependency
// (gofrs/uuid for entry identifiers).
//
// Core types:
//   - [Target]: resource kind plus kind-specific parameters (collection, entry)
//   - [Request]: method, URL, headers, body, resolved target and attributes
//   - [Response]: status, headers and the entity to serialize
//   - [StatusError]: error carrying an HTTP status for the caller
//   - [Feed], [Entry], [Categories], [Service]: Atom entities
package api
