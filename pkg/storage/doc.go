// Package storage provides utilities shared across storage adapter
// implementations, including sentinel errors and tenant context helpers.
//
// Storage adapters (memory, postgres) implement collection.Adapter and the
// optional media, categories and transactional capabilities. This package
// contains only shared types and helpers.
package storage
