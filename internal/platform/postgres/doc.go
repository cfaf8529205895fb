// Package postgres provides PostgreSQL implementations of the store
// interfaces. All stores accept a store.DBTX so they work against either
// a plain connection pool or a caller-managed transaction, and they map
// driver errors to the sentinel errors defined in the store package.
package postgres
