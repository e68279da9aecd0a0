package cache

import "errors"

// Sentinel errors surfaced to callers. Replica-facing failures are never
// wrapped in these; they are logged and counted only.
var (
	// ErrDuplicateNode is returned when registering a node id that exists.
	ErrDuplicateNode = errors.New("cache: duplicate node id")

	// ErrUnknownNode is returned for operations on an unregistered node.
	ErrUnknownNode = errors.New("cache: unknown node")

	// ErrCapacityExceeded is returned by Set when eviction cannot bring
	// memory under budget (e.g. a single value larger than the budget).
	ErrCapacityExceeded = errors.New("cache: memory budget exceeded")
)
