package dag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	id1, err := s.Put([]byte("hello"))
	require.NoError(t, err)
	id2, err := s.Put([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, id1.Filename(), entries[0].Name())

	got, err := s.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	ok, err := s.Has(id1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStore_GetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	id, err := ComputeID([]byte("never stored"))
	require.NoError(t, err)

	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Has(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_Compression(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, WithCompression())
	require.NoError(t, err)
	defer s.Close()

	data := []byte(strings.Repeat("line of text\n", 200))
	id, err := s.Put(data)
	require.NoError(t, err)

	want, err := ComputeID(data)
	require.NoError(t, err)
	assert.Equal(t, want, id, "digest must cover the uncompressed bytes")

	raw, err := os.ReadFile(filepath.Join(dir, id.Filename()))
	require.NoError(t, err)
	assert.Less(t, len(raw), len(data))

	// A store without compression still reads compressed objects.
	plain, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := plain.Get(id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFileStore_RawContentWithZstdMagic(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := append([]byte{0x28, 0xb5, 0x2f, 0xfd}, []byte("not really zstd")...)
	id, err := s.Put(data)
	require.NoError(t, err)
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFileStore_DetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	id, err := s.Put([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id.Filename()), []byte("tampered"), 0644))

	_, err = s.Get(id)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, ErrCorruptObject)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	id1, err := s.Put([]byte("x"))
	require.NoError(t, err)
	id2, err := s.Put([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ID{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore(t *testing.T) {
	db, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	defer db.Close()
	s := NewBadgerStore(db)

	id1, err := s.Put([]byte("payload"))
	require.NoError(t, err)
	id2, err := s.Put([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	ok, err := s.Has(id1)
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := ComputeID([]byte("other"))
	require.NoError(t, err)
	_, err = s.Get(other)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
