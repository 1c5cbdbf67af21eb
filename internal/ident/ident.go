// Package ident implements the external record reference scheme.
//
// A reference is a pair of shard tag and in-shard index, rendered as
// "<tag>:<index>", e.g. "a0:0". Indices are per-shard, monotonically
// increasing and never reused, even after deletion.
package ident

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/userdb/internal/common"
)

// Ref identifies a record: the shard it lives in and its slot index there.
type Ref struct {
	Tag   string
	Index uint64
}

// String renders the reference in its external form. It is the exact
// inverse of Parse for every value Parse accepts.
func (r Ref) String() string {
	return r.Tag + ":" + strconv.FormatUint(r.Index, 10)
}

// ValidTag reports whether s is acceptable as a shard tag: non-empty,
// lowercase letters and digits only, starting with a letter.
func ValidTag(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Parse decodes an external reference string. It accepts exactly the
// strings String produces: a valid tag, a colon, and a canonical decimal
// index (no sign, no leading zeros). Anything else is ErrMalformedRef.
func Parse(s string) (Ref, error) {
	tag, idx, ok := strings.Cut(s, ":")
	if !ok || !ValidTag(tag) {
		return Ref{}, fmt.Errorf("%w: %q", common.ErrMalformedRef, s)
	}
	if idx == "" || (len(idx) > 1 && idx[0] == '0') {
		return Ref{}, fmt.Errorf("%w: %q", common.ErrMalformedRef, s)
	}
	for _, c := range idx {
		if c < '0' || c > '9' {
			return Ref{}, fmt.Errorf("%w: %q", common.ErrMalformedRef, s)
		}
	}
	n, err := strconv.ParseUint(idx, 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q", common.ErrMalformedRef, s)
	}
	return Ref{Tag: tag, Index: n}, nil
}
