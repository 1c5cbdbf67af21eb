// Package query implements unindexed equality search over record fields.
//
// Find is a full linear scan over every shard. No secondary index is
// maintained on purpose: cost grows with the total record count, and that
// ceiling is part of the contract (the tests pin the scan behavior).
package query

import (
	"fmt"

	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/ident"
	"github.com/dmitrijs2005/userdb/internal/record"
	"github.com/dmitrijs2005/userdb/internal/server/shard"
)

// Source yields the shards to scan, ordered by tag.
type Source interface {
	Shards() []*shard.Shard
}

// Match is one search hit.
type Match struct {
	Ref ident.Ref
	Rec record.Record
}

type Engine struct {
	src Source
}

func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Find returns every live record whose named field equals value by exact
// string comparison, ordered by (tag, index). Unknown field names fail with
// ErrUnknownField before any shard is touched.
func (e *Engine) Find(field, value string) ([]Match, error) {
	if !record.Known(field) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownField, field)
	}

	var matches []Match
	for _, s := range e.src.Shards() {
		for _, slot := range s.Scan() {
			v, err := slot.Rec.Value(field)
			if err != nil {
				return nil, err
			}
			if v == value {
				matches = append(matches, Match{
					Ref: ident.Ref{Tag: s.Tag(), Index: slot.Idx},
					Rec: slot.Rec,
				})
			}
		}
	}
	return matches, nil
}
