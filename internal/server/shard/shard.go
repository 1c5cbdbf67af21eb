// Package shard implements the durable storage unit behind a single shard.
//
// Each shard is an append-only log file "<tag>.log" under the storage root,
// one JSON entry per line. A put entry carries a slot index and the full
// record, a del entry tombstones an index, and a meta entry (written by
// compaction) preserves the next-index watermark. Every mutating append is
// fsynced before it is acknowledged, and replay at open ignores a torn
// trailing line, so a crash mid-write never leaves a half-written record
// visible.
//
// Slot indices are monotonic and never reused: a deleted index stays retired
// because its del entry (or the meta watermark after compaction) survives in
// the log.
package shard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/record"
)

// LogSuffix is the file name suffix of a shard log under the storage root.
// Shard identity is the file name with this suffix stripped.
const LogSuffix = ".log"

const (
	opPut  = "put"
	opDel  = "del"
	opMeta = "meta"
)

type logEntry struct {
	Op   string         `json:"op"`
	Idx  uint64         `json:"idx"`
	Next uint64         `json:"next,omitempty"`
	Rec  *record.Record `json:"rec,omitempty"`
}

// Slot is one live record with its in-shard index.
type Slot struct {
	Idx uint64
	Rec record.Record
}

// Shard owns the log file and the in-memory slot map rebuilt from it.
// All methods are safe for concurrent use.
type Shard struct {
	tag  string
	path string

	mu   sync.RWMutex
	f    *os.File
	next uint64
	live map[uint64]record.Record
}

// LogPath returns the log file path for tag under root.
func LogPath(root, tag string) string {
	return filepath.Join(root, tag+LogSuffix)
}

// TagFromPath derives the shard tag from a log file path, or "" if the path
// is not a shard log.
func TagFromPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, LogSuffix) {
		return ""
	}
	return strings.TrimSuffix(base, LogSuffix)
}

// Open opens (creating if absent) the shard log for tag under root and
// replays it into memory. A replay failure is isolated to this shard, the
// caller decides whether to continue with the others.
func Open(root, tag string) (*Shard, error) {
	path := LogPath(root, tag)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open shard %s: %v", common.ErrStorage, tag, err)
	}

	s := &Shard{
		tag:  tag,
		path: path,
		f:    f,
		live: make(map[uint64]record.Record),
	}

	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// replay rebuilds the slot map and next-index watermark from the log.
// An unterminated trailing line is a torn write from a crash: it is cut off
// and the log truncated to the last complete entry. A malformed entry that
// is properly terminated means real corruption and fails the whole shard.
func (s *Shard) replay() error {
	data, err := io.ReadAll(s.f)
	if err != nil {
		return fmt.Errorf("%w: read shard %s: %v", common.ErrStorage, s.tag, err)
	}

	var offset int64
	for len(data) > 0 {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			// torn tail, drop it
			if err := s.f.Truncate(offset); err != nil {
				return fmt.Errorf("%w: truncate shard %s: %v", common.ErrStorage, s.tag, err)
			}
			break
		}

		line := data[:nl]
		data = data[nl+1:]

		var e logEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("%w: shard %s corrupt at offset %d: %v", common.ErrStorage, s.tag, offset, err)
		}
		offset += int64(nl + 1)

		switch e.Op {
		case opPut:
			if e.Rec == nil {
				return fmt.Errorf("%w: shard %s corrupt: put without record", common.ErrStorage, s.tag)
			}
			s.live[e.Idx] = *e.Rec
			if e.Idx >= s.next {
				s.next = e.Idx + 1
			}
		case opDel:
			delete(s.live, e.Idx)
			if e.Idx >= s.next {
				s.next = e.Idx + 1
			}
		case opMeta:
			if e.Next > s.next {
				s.next = e.Next
			}
		default:
			return fmt.Errorf("%w: shard %s corrupt: unknown op %q", common.ErrStorage, s.tag, e.Op)
		}
	}

	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: seek shard %s: %v", common.ErrStorage, s.tag, err)
	}
	return nil
}

// appendEntry writes one entry and syncs it to disk. Callers hold s.mu.
func (s *Shard) appendEntry(e logEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode shard %s entry: %v", common.ErrStorage, s.tag, err)
	}
	b = append(b, '\n')

	if _, err := s.f.Write(b); err != nil {
		return fmt.Errorf("%w: write shard %s: %v", common.ErrStorage, s.tag, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync shard %s: %v", common.ErrStorage, s.tag, err)
	}
	return nil
}

// Tag returns the shard tag.
func (s *Shard) Tag() string { return s.tag }

// Next returns the next index that Append would allocate.
func (s *Shard) Next() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

// Len returns the number of live records.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Append durably persists a new record and returns its freshly allocated
// index. The index is visible only after the entry hit disk.
func (s *Shard) Append(rec record.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.next
	if err := s.appendEntry(logEntry{Op: opPut, Idx: idx, Rec: &rec}); err != nil {
		return 0, err
	}
	s.next = idx + 1
	s.live[idx] = rec
	return idx, nil
}

// Read returns the live record at idx, or ErrNotFound if the index was never
// allocated or has been deleted.
func (s *Shard) Read(idx uint64) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.live[idx]
	if !ok {
		return record.Record{}, fmt.Errorf("%w: %s:%d", common.ErrNotFound, s.tag, idx)
	}
	return rec, nil
}

// Overwrite durably replaces the record at idx. Fails with ErrNotFound if
// the slot is not live.
func (s *Shard) Overwrite(idx uint64, rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[idx]; !ok {
		return fmt.Errorf("%w: %s:%d", common.ErrNotFound, s.tag, idx)
	}
	if err := s.appendEntry(logEntry{Op: opPut, Idx: idx, Rec: &rec}); err != nil {
		return err
	}
	s.live[idx] = rec
	return nil
}

// Update applies fn to the record at idx and durably persists the result,
// all under the shard lock, so concurrent updates to the same slot apply in
// a total order and never interleave their merges.
func (s *Shard) Update(idx uint64, fn func(record.Record) (record.Record, error)) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.live[idx]
	if !ok {
		return record.Record{}, fmt.Errorf("%w: %s:%d", common.ErrNotFound, s.tag, idx)
	}

	merged, err := fn(cur)
	if err != nil {
		return record.Record{}, err
	}

	if err := s.appendEntry(logEntry{Op: opPut, Idx: idx, Rec: &merged}); err != nil {
		return record.Record{}, err
	}
	s.live[idx] = merged
	return merged, nil
}

// Delete tombstones idx. The index is retired for good: it is never handed
// out again, even across restarts.
func (s *Shard) Delete(idx uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[idx]; !ok {
		return fmt.Errorf("%w: %s:%d", common.ErrNotFound, s.tag, idx)
	}
	if err := s.appendEntry(logEntry{Op: opDel, Idx: idx}); err != nil {
		return err
	}
	delete(s.live, idx)
	return nil
}

// Scan returns a snapshot of the live records ordered by index. The snapshot
// is taken under the read lock, so it never observes a half-applied
// mutation.
func (s *Shard) Scan() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := make([]Slot, 0, len(s.live))
	for idx, rec := range s.live {
		slots = append(slots, Slot{Idx: idx, Rec: rec})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Idx < slots[j].Idx })
	return slots
}

// Compact rewrites the log keeping only live records, prefixed with a meta
// entry that preserves the next-index watermark so retired indices stay
// retired. The new log replaces the old one atomically via rename.
func (s *Shard) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: compact shard %s: %v", common.ErrStorage, s.tag, err)
	}

	write := func(e logEntry) error {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tmp.Write(append(b, '\n'))
		return err
	}

	err = write(logEntry{Op: opMeta, Next: s.next})
	if err == nil {
		idxs := make([]uint64, 0, len(s.live))
		for idx := range s.live {
			idxs = append(idxs, idx)
		}
		sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
		for _, idx := range idxs {
			rec := s.live[idx]
			if err = write(logEntry{Op: opPut, Idx: idx, Rec: &rec}); err != nil {
				break
			}
		}
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: compact shard %s: %v", common.ErrStorage, s.tag, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: compact shard %s: %v", common.ErrStorage, s.tag, err)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: reopen shard %s: %v", common.ErrStorage, s.tag, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return fmt.Errorf("%w: seek shard %s: %v", common.ErrStorage, s.tag, err)
	}

	s.f.Close()
	s.f = f
	return nil
}

// Close releases the log file handle.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
