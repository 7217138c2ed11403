package storage

import "errors"

// Sentinel errors returned by the storage layer, translated from driver
// errors (e.g. pgx.ErrNoRows) at the query boundary.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrNoJobsAvailable indicates no claimable embedding job exists.
	ErrNoJobsAvailable = errors.New("storage: no jobs available")

	// ErrConflict indicates a write lost a race (e.g. duplicate job for an episode).
	ErrConflict = errors.New("storage: conflict")

	// ErrPoolUnavailable indicates the connection pool could not service a
	// request (e.g. Begin failed because Postgres is unreachable) —
	// distinct from ErrNotFound/ErrConflict, which indicate the database
	// responded but the query found no match or lost a race.
	ErrPoolUnavailable = errors.New("storage: connection pool unavailable")
)
