// Package registry maintains the process-wide index over all shards and
// implements record placement.
//
// The registry is a derived cache: it owns no durable state of its own and
// is rebuilt from the shard logs at startup. It is constructed once and
// passed explicitly to the protocol dispatcher, there is no ambient
// singleton.
//
// Placement policy: deterministic round-robin over the sorted shard tags.
// The cursor starts at the sum of the shards' next-index watermarks, so the
// rotation continues where it left off across restarts. The cursor advances
// on every allocation attempt, including ones that later fail at the
// storage layer.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/ident"
	"github.com/dmitrijs2005/userdb/internal/logging"
	"github.com/dmitrijs2005/userdb/internal/record"
	"github.com/dmitrijs2005/userdb/internal/server/shard"
)

type Registry struct {
	root   string
	logger logging.Logger

	mu     sync.RWMutex
	tags   []string // sorted, placement order
	shards map[string]*shard.Shard
	allocs uint64 // round-robin cursor
}

// Open builds a registry over the storage root. The shard set is the union
// of the configured tags and the shard logs already present under the root,
// so a rebuild needs no external configuration to see every shard.
//
// A shard that fails to load is skipped with an error log: corruption of one
// shard must not prevent the others from serving.
func Open(ctx context.Context, root string, tags []string, logger logging.Logger) (*Registry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: storage root %s: %v", common.ErrStorage, root, err)
	}

	want := make(map[string]struct{})
	for _, tag := range tags {
		if !ident.ValidTag(tag) {
			return nil, fmt.Errorf("invalid shard tag %q", tag)
		}
		want[tag] = struct{}{}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: read storage root %s: %v", common.ErrStorage, root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if tag := shard.TagFromPath(e.Name()); tag != "" && ident.ValidTag(tag) {
			want[tag] = struct{}{}
		}
	}

	r := &Registry{
		root:   root,
		logger: logger.With("module", "registry"),
		shards: make(map[string]*shard.Shard, len(want)),
	}

	for tag := range want {
		s, err := shard.Open(root, tag)
		if err != nil {
			r.logger.Error(ctx, "shard failed to load, skipping", "tag", tag, "error", err.Error())
			continue
		}
		r.shards[tag] = s
		r.tags = append(r.tags, tag)
		r.allocs += s.Next()
	}
	sort.Strings(r.tags)

	if len(r.shards) == 0 {
		return nil, fmt.Errorf("%w: no usable shards under %s", common.ErrStorage, root)
	}

	r.logger.Info(ctx, "registry built", "shards", len(r.shards), "records", r.Len())
	return r, nil
}

// Len returns the number of live records across all shards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.shards {
		n += s.Len()
	}
	return n
}

// Tags returns the shard tags in placement order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

// Shards returns the shards ordered by tag.
func (r *Registry) Shards() []*shard.Shard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*shard.Shard, 0, len(r.tags))
	for _, tag := range r.tags {
		out = append(out, r.shards[tag])
	}
	return out
}

// pick reserves the next placement slot.
func (r *Registry) pick() *shard.Shard {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag := r.tags[r.allocs%uint64(len(r.tags))]
	r.allocs++
	return r.shards[tag]
}

// lookup resolves an external reference to its shard. An unknown tag is a
// malformed reference, same as a syntax error.
func (r *Registry) lookup(refStr string) (*shard.Shard, ident.Ref, error) {
	ref, err := ident.Parse(refStr)
	if err != nil {
		return nil, ident.Ref{}, err
	}

	r.mu.RLock()
	s, ok := r.shards[ref.Tag]
	r.mu.RUnlock()
	if !ok {
		return nil, ident.Ref{}, fmt.Errorf("%w: unknown shard %q", common.ErrMalformedRef, ref.Tag)
	}
	return s, ref, nil
}

// Create validates the record, places it on a shard and durably appends it.
// The returned reference is live for Get as soon as Create returns.
func (r *Registry) Create(rec record.Record) (ident.Ref, error) {
	if err := rec.Validate(); err != nil {
		return ident.Ref{}, err
	}

	s := r.pick()
	idx, err := s.Append(rec)
	if err != nil {
		return ident.Ref{}, err
	}
	return ident.Ref{Tag: s.Tag(), Index: idx}, nil
}

// Get returns the live record behind refStr.
func (r *Registry) Get(refStr string) (record.Record, error) {
	s, ref, err := r.lookup(refStr)
	if err != nil {
		return record.Record{}, err
	}
	return s.Read(ref.Index)
}

// Update merges the patch into the stored record and persists the result.
// The merge runs under the shard lock, so two concurrent updates to the same
// reference apply in a total order and never mix their field sets.
func (r *Registry) Update(refStr string, patch map[string]string) (record.Record, error) {
	s, ref, err := r.lookup(refStr)
	if err != nil {
		return record.Record{}, err
	}

	return s.Update(ref.Index, func(cur record.Record) (record.Record, error) {
		if err := cur.Apply(patch); err != nil {
			return record.Record{}, err
		}
		if err := cur.Validate(); err != nil {
			return record.Record{}, err
		}
		return cur, nil
	})
}

// Delete tombstones the record behind refStr. The index is retired, never
// reused.
func (r *Registry) Delete(refStr string) error {
	s, ref, err := r.lookup(refStr)
	if err != nil {
		return err
	}
	return s.Delete(ref.Index)
}

// Compact rewrites every shard log, dropping overwritten and deleted
// entries.
func (r *Registry) Compact(ctx context.Context) {
	for _, s := range r.Shards() {
		if err := s.Compact(); err != nil {
			r.logger.Error(ctx, "compaction failed", "tag", s.Tag(), "error", err.Error())
			continue
		}
		r.logger.Debug(ctx, "shard compacted", "tag", s.Tag(), "records", s.Len())
	}
}

// Close releases all shard handles.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, s := range r.shards {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
