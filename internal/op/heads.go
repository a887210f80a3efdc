package op

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sys/unix"

	"github.com/systemshift/weft/internal/dag"
)

// HeadStore holds the id of the current operation. CompareAndSwap is the
// only synchronization point between processes sharing a repository: it
// moves the head from expected to next atomically, or reports false if
// another writer got there first. A zero expected id means "no head yet".
type HeadStore interface {
	ReadHead(ctx context.Context) (dag.ID, error)
	CompareAndSwap(ctx context.Context, expected, next dag.ID) (bool, error)
}

// FileHeadStore keeps the head as a single-line file holding the base32
// operation id. Swaps hold an exclusive flock on a sibling lock file and
// replace the head file with SafeWrite, so readers never need the lock.
type FileHeadStore struct {
	path     string
	lockPath string
	poll     time.Duration
}

// NewFileHeadStore returns a store for the head file at path.
func NewFileHeadStore(path string) *FileHeadStore {
	return &FileHeadStore{path: path, lockPath: path + ".lock", poll: 5 * time.Millisecond}
}

// Path returns the head file's path.
func (s *FileHeadStore) Path() string { return s.path }

func (s *FileHeadStore) ReadHead(ctx context.Context) (dag.ID, error) {
	if err := ctx.Err(); err != nil {
		return dag.ID{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return dag.ID{}, ErrNoHead
	}
	if err != nil {
		return dag.ID{}, &dag.StoreError{Op: "read head", Err: err}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return dag.ID{}, ErrNoHead
	}
	id, err := dag.ParseString(text)
	if err != nil {
		return dag.ID{}, fmt.Errorf("decode operation head: %w", err)
	}
	return id, nil
}

func (s *FileHeadStore) CompareAndSwap(ctx context.Context, expected, next dag.ID) (ok bool, err error) {
	defer func() { recordSwap("file", ok, err) }()

	unlock, err := s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := s.ReadHead(ctx)
	if errors.Is(err, ErrNoHead) {
		current, err = dag.ID{}, nil
	}
	if err != nil {
		return false, err
	}
	if current != expected {
		return false, nil
	}
	if err := dag.SafeWrite(s.path, []byte(next.Filename()+"\n"), 0o644); err != nil {
		return false, &dag.StoreError{Op: "write head", ID: next, Err: err}
	}
	return true, nil
}

// lock takes the exclusive lock, polling so that ctx can interrupt the wait.
func (s *FileHeadStore) lock(ctx context.Context) (func(), error) {
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &dag.StoreError{Op: "open head lock", Err: err}
	}
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, &dag.StoreError{Op: "lock head", Err: err}
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// MemoryHeadStore keeps the head in memory. It serves tests and processes
// that share a repository through one value.
type MemoryHeadStore struct {
	mu   sync.Mutex
	head dag.ID
}

// NewMemoryHeadStore returns an uninitialized store.
func NewMemoryHeadStore() *MemoryHeadStore { return &MemoryHeadStore{} }

func (s *MemoryHeadStore) ReadHead(ctx context.Context) (dag.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head.IsZero() {
		return dag.ID{}, ErrNoHead
	}
	return s.head, nil
}

func (s *MemoryHeadStore) CompareAndSwap(ctx context.Context, expected, next dag.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.head == expected
	if ok {
		s.head = next
	}
	recordSwap("memory", ok, nil)
	return ok, nil
}

var badgerHeadKey = []byte("op/head")

// BadgerHeadStore keeps the head under a fixed key of a badger database,
// next to the objects of a BadgerStore. Badger's optimistic transactions
// make the read-compare-write atomic.
type BadgerHeadStore struct {
	db *badger.DB
}

// NewBadgerHeadStore wraps an open database.
func NewBadgerHeadStore(db *badger.DB) *BadgerHeadStore { return &BadgerHeadStore{db: db} }

func (s *BadgerHeadStore) ReadHead(ctx context.Context) (dag.ID, error) {
	if err := ctx.Err(); err != nil {
		return dag.ID{}, err
	}
	var id dag.ID
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		id, err = readBadgerHead(txn)
		return err
	})
	if err != nil {
		return dag.ID{}, err
	}
	if id.IsZero() {
		return dag.ID{}, ErrNoHead
	}
	return id, nil
}

func (s *BadgerHeadStore) CompareAndSwap(ctx context.Context, expected, next dag.ID) (ok bool, err error) {
	defer func() { recordSwap("badger", ok, err) }()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		current, err := readBadgerHead(txn)
		if err != nil {
			return err
		}
		if current != expected {
			return nil
		}
		ok = true
		return txn.Set(badgerHeadKey, []byte(next.Filename()))
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, &dag.StoreError{Op: "swap head", ID: next, Err: err}
	}
	return ok, nil
}

func readBadgerHead(txn *badger.Txn) (dag.ID, error) {
	item, err := txn.Get(badgerHeadKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return dag.ID{}, nil
	}
	if err != nil {
		return dag.ID{}, &dag.StoreError{Op: "read head", Err: err}
	}
	var id dag.ID
	err = item.Value(func(val []byte) error {
		return id.UnmarshalText(val)
	})
	if err != nil {
		return dag.ID{}, fmt.Errorf("decode operation head: %w", err)
	}
	return id, nil
}
