// Package protocol defines the wire format spoken over the local socket.
//
// Framing is newline-delimited JSON: one request object per line from the
// client, one response object per line back. JSON string escaping keeps the
// frame unambiguous and puts no limit on field value length, long hashes
// included.
//
// Failures travel as structured kinds plus a human-readable detail, enough
// for a front-end to map them to its own status codes without this core
// knowing anything about HTTP.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/record"
)

// Request operations.
const (
	OpCreate = "create"
	OpGet    = "get"
	OpUpdate = "update"
	OpDelete = "delete"
	OpFind   = "find"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error kinds carried in error responses.
const (
	KindMalformedRef = "malformed_ref"
	KindNotFound     = "not_found"
	KindUnknownField = "unknown_field"
	KindValidation   = "validation"
	KindStorage      = "storage"
	KindBadRequest   = "bad_request"
)

// Request is one framed client request.
//
// Fields is an optional projection for get and find: when set, only the
// named record fields come back.
type Request struct {
	Op     string            `json:"op"`
	Ref    string            `json:"ref,omitempty"`
	Record *record.Record    `json:"record,omitempty"`
	Patch  map[string]string `json:"patch,omitempty"`
	Field  string            `json:"field,omitempty"`
	Value  string            `json:"value,omitempty"`
	Fields []string          `json:"fields,omitempty"`
}

// Result is one find hit.
type Result struct {
	Ref    string            `json:"ref"`
	Record map[string]string `json:"record"`
}

// Response is one framed server response.
type Response struct {
	Status  string            `json:"status"`
	Ref     string            `json:"ref,omitempty"`
	Record  map[string]string `json:"record,omitempty"`
	Results []Result          `json:"results,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

// WriteFrame encodes v as a single JSON line.
func WriteFrame(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// ReadLine reads one frame's raw bytes. The caller unmarshals separately so
// that a malformed frame can be answered without losing stream alignment.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return line, nil
}

// KindOf classifies an error into a wire kind. Anything outside the known
// taxonomy is reported as a storage failure rather than swallowed.
func KindOf(err error) string {
	switch {
	case errors.Is(err, common.ErrMalformedRef):
		return KindMalformedRef
	case errors.Is(err, common.ErrNotFound):
		return KindNotFound
	case errors.Is(err, common.ErrUnknownField):
		return KindUnknownField
	case errors.Is(err, common.ErrValidation):
		return KindValidation
	case errors.Is(err, common.ErrBadRequest):
		return KindBadRequest
	default:
		return KindStorage
	}
}

// ErrorResponse builds the error frame for err.
func ErrorResponse(err error) Response {
	return Response{Status: StatusError, Kind: KindOf(err), Detail: err.Error()}
}

// ErrorFromResponse reverses ErrorResponse on the client side: the returned
// error wraps the sentinel matching the kind, so errors.Is works across the
// wire.
func ErrorFromResponse(resp Response) error {
	if resp.Status != StatusError {
		return nil
	}

	var sentinel error
	switch resp.Kind {
	case KindMalformedRef:
		sentinel = common.ErrMalformedRef
	case KindNotFound:
		sentinel = common.ErrNotFound
	case KindUnknownField:
		sentinel = common.ErrUnknownField
	case KindValidation:
		sentinel = common.ErrValidation
	case KindBadRequest:
		sentinel = common.ErrBadRequest
	default:
		sentinel = common.ErrStorage
	}
	return fmt.Errorf("%w: %s", sentinel, resp.Detail)
}
