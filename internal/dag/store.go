package dag

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Store maps content digests to immutable blobs. Put is idempotent: storing
// the same bytes twice yields the same ID and writes nothing the second time.
type Store interface {
	Get(id ID) ([]byte, error)
	Put(data []byte) (ID, error)
	Has(id ID) (bool, error)
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FileStore keeps one file per object under dir, named by the base32 CID.
// When compression is enabled objects are zstd-compressed on disk; the
// digest is always computed over the uncompressed bytes.
type FileStore struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore) error

// WithCompression enables zstd compression for newly written objects.
func WithCompression() FileStoreOption {
	return func(s *FileStore) error {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		s.enc = enc
		return nil
	}
}

// NewFileStore creates a FileStore at the given directory.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	s := &FileStore{dir: dir, dec: dec}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) path(id ID) string {
	return filepath.Join(s.dir, id.Filename())
}

// Put writes data to the object store, returning its ID.
// If the object already exists, this is a no-op.
func (s *FileStore) Put(data []byte) (ID, error) {
	id, err := ComputeID(data)
	if err != nil {
		return ID{}, &StoreError{Op: "put", Err: err}
	}
	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	payload := data
	if s.enc != nil {
		payload = s.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	if _, err := WriteIfAbsent(path, payload, 0644); err != nil {
		return ID{}, &StoreError{Op: "put", ID: id, Err: err}
	}
	return id, nil
}

// Get reads an object by ID and verifies it against its digest.
func (s *FileStore) Get(id ID) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", id.Short(), ErrNotFound)
	}
	if err != nil {
		return nil, &StoreError{Op: "get", ID: id, Err: err}
	}
	if bytes.HasPrefix(data, zstdMagic) {
		if plain, err := s.dec.DecodeAll(data, nil); err == nil && matches(id, plain) {
			return plain, nil
		}
	}
	if !matches(id, data) {
		return nil, &StoreError{Op: "get", ID: id, Err: ErrCorruptObject}
	}
	return data, nil
}

// Has checks if an object exists.
func (s *FileStore) Has(id ID) (bool, error) {
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &StoreError{Op: "has", ID: id, Err: err}
}

// Close releases the compression codecs.
func (s *FileStore) Close() error {
	if s.enc != nil {
		s.enc.Close()
	}
	s.dec.Close()
	return nil
}

func matches(id ID, data []byte) bool {
	got, err := ComputeID(data)
	return err == nil && got == id
}

// MemoryStore is an in-process Store, used by tests and throwaway
// repositories.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[ID][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[ID][]byte)}
}

func (s *MemoryStore) Put(data []byte) (ID, error) {
	id, err := ComputeID(data)
	if err != nil {
		return ID{}, &StoreError{Op: "put", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		s.objects[id] = bytes.Clone(data)
	}
	return id, nil
}

func (s *MemoryStore) Get(id ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id.Short(), ErrNotFound)
	}
	return bytes.Clone(data), nil
}

func (s *MemoryStore) Has(id ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
