// Package common defines shared sentinel errors used across the client and
// server layers of userdb. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// ErrNotFound means the reference was well-formed but no live record
	// exists for it.
	ErrNotFound = errors.New("not found")

	// ErrMalformedRef means the caller supplied a reference that does not
	// match the "<tag>:<index>" scheme or names an unknown shard.
	ErrMalformedRef = errors.New("malformed reference")

	// ErrUnknownField means a field name outside the record schema was used
	// in a find or update.
	ErrUnknownField = errors.New("unknown field")

	// ErrValidation means a create or update carried missing or unacceptable
	// field values.
	ErrValidation = errors.New("validation error")

	// ErrStorage means a durable read or write failed at the shard layer.
	// Fatal for that operation, surfaced to the caller, never swallowed.
	ErrStorage = errors.New("storage failure")

	// ErrBadRequest means a request frame could not be decoded.
	ErrBadRequest = errors.New("bad request")
)
