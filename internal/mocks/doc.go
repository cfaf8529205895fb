// Package mocks provides in-memory store implementations for tests. They
// honor the same error contracts as the postgres stores (not-found and
// duplicate sentinels, queue dedup over non-terminal rows) without a
// database.
package mocks
