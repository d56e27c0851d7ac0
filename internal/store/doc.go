// Package store defines the persisted entities of the catalog mirror and the
// interface for the record store. Implementations live in subpackages; this
// package must not import database drivers or concrete clients.
package store
