package shard

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/record"
)

func testRecord(name string) record.Record {
	return record.Record{
		Username:     name,
		PasswordHash: "h",
		IPReg:        "127.0.0.1",
		LastLogged:   "2025-06-16T12:00:00",
		LastIP:       "127.0.0.1",
	}
}

func TestAppendRead(t *testing.T) {
	s, err := Open(t.TempDir(), "a0")
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append(testRecord("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)

	idx, err = s.Append(testRecord("bob"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idx)

	rec, err := s.Read(0)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)

	_, err = s.Read(5)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestOverwrite(t *testing.T) {
	s, err := Open(t.TempDir(), "a0")
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append(testRecord("alice"))
	require.NoError(t, err)

	rec := testRecord("alice")
	rec.LastIP = "192.168.0.2"
	require.NoError(t, s.Overwrite(idx, rec))

	got, err := s.Read(idx)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.2", got.LastIP)

	err = s.Overwrite(99, rec)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestDelete(t *testing.T) {
	s, err := Open(t.TempDir(), "a0")
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append(testRecord("alice"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(idx))

	_, err = s.Read(idx)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = s.Delete(idx)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestNoIndexReuseAfterDelete(t *testing.T) {
	s, err := Open(t.TempDir(), "a0")
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append(testRecord("alice"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(idx))

	next, err := s.Append(testRecord("bob"))
	require.NoError(t, err)
	assert.Equal(t, idx+1, next)
}

func TestReopenRestoresState(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "a0")
	require.NoError(t, err)

	_, err = s.Append(testRecord("alice"))
	require.NoError(t, err)
	idxBob, err := s.Append(testRecord("bob"))
	require.NoError(t, err)
	_, err = s.Append(testRecord("carol"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(idxBob))

	updated := testRecord("carol")
	updated.LastIP = "10.0.0.1"
	require.NoError(t, s.Overwrite(2, updated))
	require.NoError(t, s.Close())

	s, err = Open(dir, "a0")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(3), s.Next())
	assert.Equal(t, 2, s.Len())

	_, err = s.Read(idxBob)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	rec, err := s.Read(2)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", rec.LastIP)
}

func TestReopenAfterDeleteRetiresIndex(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "a0")
	require.NoError(t, err)
	idx, err := s.Append(testRecord("alice"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(idx))
	require.NoError(t, s.Close())

	s, err = Open(dir, "a0")
	require.NoError(t, err)
	defer s.Close()

	next, err := s.Append(testRecord("bob"))
	require.NoError(t, err)
	assert.Equal(t, idx+1, next)
}

func TestTornTailIgnored(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "a0")
	require.NoError(t, err)
	_, err = s.Append(testRecord("alice"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// simulate a crash mid-append: partial entry without trailing newline
	f, err := os.OpenFile(LogPath(dir, "a0"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"put","idx":1,"rec":{"user`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = Open(dir, "a0")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint64(1), s.Next())

	// the shard stays writable after truncating the torn tail
	idx, err := s.Append(testRecord("bob"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idx)
}

func TestCorruptEntryFailsShard(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(LogPath(dir, "a0"), []byte("not json\n"), 0o644))

	_, err := Open(dir, "a0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStorage))
}

func TestScanOrderedLiveOnly(t *testing.T) {
	s, err := Open(t.TempDir(), "a0")
	require.NoError(t, err)
	defer s.Close()

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := s.Append(testRecord(name))
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(1))

	slots := s.Scan()
	require.Len(t, slots, 2)
	assert.Equal(t, uint64(0), slots[0].Idx)
	assert.Equal(t, "alice", slots[0].Rec.Username)
	assert.Equal(t, uint64(2), slots[1].Idx)
	assert.Equal(t, "carol", slots[1].Rec.Username)
}

func TestCompactPreservesWatermark(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "a0")
	require.NoError(t, err)

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := s.Append(testRecord(name))
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(2))
	require.NoError(t, s.Compact())

	// shard remains usable after compaction
	idx, err := s.Append(testRecord("dave"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), idx)
	require.NoError(t, s.Close())

	s, err = Open(dir, "a0")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(4), s.Next())
	assert.Equal(t, 3, s.Len())
	_, err = s.Read(2)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestTagFromPath(t *testing.T) {
	assert.Equal(t, "a0", TagFromPath("/data/shards/a0.log"))
	assert.Equal(t, "", TagFromPath("/data/shards/a0.tmp"))
	assert.Equal(t, "", TagFromPath("/data/shards/readme"))
}
