// Package auth provides pluggable authentication and authorization for sense.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Authentication runs as HTTP middleware in front of the dispatcher. The
// middleware stores the identity in the request context, where the
// dispatcher's subject resolution and the collection adapters find it,
// and injects the tenant for storage scoping. Collection adapters call
// [Authorize] to require a scope for write operations.
package auth
