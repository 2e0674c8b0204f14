package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/ovsnet/ovsvlan/pkg/backoff"
	"github.com/ovsnet/ovsvlan/pkg/logger"
)

var log = logger.WithSubSys("storage")

// ErrNotFound key not found in store
var ErrNotFound = errors.New("not found")

// openTimeout is how long a single bolt.Open waits for the file lock.
const openTimeout = time.Second

// Storage persistent storage on disk
type Storage[T any] interface {
	Put(key string, value T) error
	Get(key string) (T, error)
	List() ([]T, error)
	Delete(key string) error
}

// MemoryStorage is in memory storage
type MemoryStorage[T any] struct {
	lock  sync.RWMutex
	store map[string]T
}

// NewMemoryStorage return new in memory storage
func NewMemoryStorage[T any]() *MemoryStorage[T] {
	return &MemoryStorage[T]{
		store: make(map[string]T),
	}
}

// Put somethings into memory storage
func (m *MemoryStorage[T]) Put(key string, value T) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.store[key] = value
	return nil
}

// Get value in memory storage
func (m *MemoryStorage[T]) Get(key string) (T, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	value, ok := m.store[key]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return value, nil
}

// List values in memory storage
func (m *MemoryStorage[T]) List() ([]T, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	ret := make([]T, 0, len(m.store))
	for _, v := range m.store {
		ret = append(ret, v)
	}
	return ret, nil
}

// Delete key in memory storage
func (m *MemoryStorage[T]) Delete(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.store, key)
	return nil
}

// Serializer tells storage how to serialize object
type Serializer[T any] func(T) ([]byte, error)

// Deserializer tells storage how to deserialize
type Deserializer[T any] func([]byte) (T, error)

// JSONSerializer encodes values with encoding/json.
func JSONSerializer[T any]() Serializer[T] {
	return func(v T) ([]byte, error) {
		return json.Marshal(v)
	}
}

// JSONDeserializer decodes values with encoding/json.
func JSONDeserializer[T any]() Deserializer[T] {
	return func(b []byte) (T, error) {
		var v T
		err := json.Unmarshal(b, &v)
		return v, err
	}
}

// Open opens the bolt file at path, creating parent directories. A file
// locked by another process is retried with the DBOpen backoff.
func Open(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	var db *bolt.DB
	var lastErr error
	err := wait.ExponentialBackoff(backoff.Backoff(backoff.DBOpen), func() (bool, error) {
		db, lastErr = bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
		if lastErr == nil {
			return true, nil
		}
		if errors.Is(lastErr, bolt.ErrTimeout) {
			log.Warnf("db %s is locked, retrying", path)
			return false, nil
		}
		return false, lastErr
	})
	if err != nil {
		if lastErr != nil {
			return nil, fmt.Errorf("open db %s: %w", path, lastErr)
		}
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	return db, nil
}

// DiskStorage persistence storage on disk, mirrored in memory
type DiskStorage[T any] struct {
	db           *bolt.DB
	name         string
	memory       *MemoryStorage[T]
	serializer   Serializer[T]
	deserializer Deserializer[T]
}

// NewDiskStorage return new disk storage backed by the bucket name in db
func NewDiskStorage[T any](db *bolt.DB, name string, serializer Serializer[T], deserializer Deserializer[T]) (*DiskStorage[T], error) {
	diskstorage := &DiskStorage[T]{
		db:           db,
		name:         name,
		memory:       NewMemoryStorage[T](),
		serializer:   serializer,
		deserializer: deserializer,
	}

	err := diskstorage.load()
	if err != nil {
		return nil, err
	}

	return diskstorage, nil
}

// Put somethings into disk storage
func (d *DiskStorage[T]) Put(key string, value T) error {
	return Batch(d.db, d.PutOp(key, value))
}

// load all data from disk db
func (d *DiskStorage[T]) load() error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(d.name))
		return err
	})
	if err != nil {
		return err
	}

	return d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(d.name))
		cursor := b.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			log.Debugf("load %s/%s from db", d.name, k)
			obj, err := d.deserializer(v)
			if err != nil {
				return fmt.Errorf("decode %s/%s: %w", d.name, k, err)
			}
			err = d.memory.Put(string(k), obj)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Get value in disk storage
func (d *DiskStorage[T]) Get(key string) (T, error) {
	return d.memory.Get(key)
}

// List values in disk storage
func (d *DiskStorage[T]) List() ([]T, error) {
	return d.memory.List()
}

// Delete key in disk storage
func (d *DiskStorage[T]) Delete(key string) error {
	return Batch(d.db, d.DeleteOp(key))
}

// Op is one write inside a Batch. It returns a commit func applied to the
// in-memory mirror once the bolt transaction succeeded.
type Op func(tx *bolt.Tx) (commit func(), err error)

// PutOp returns an Op writing key into this storage.
func (d *DiskStorage[T]) PutOp(key string, value T) Op {
	return func(tx *bolt.Tx) (func(), error) {
		data, err := d.serializer(value)
		if err != nil {
			return nil, err
		}
		if err = tx.Bucket([]byte(d.name)).Put([]byte(key), data); err != nil {
			return nil, err
		}
		return func() { _ = d.memory.Put(key, value) }, nil
	}
}

// DeleteOp returns an Op removing key from this storage.
func (d *DiskStorage[T]) DeleteOp(key string) Op {
	return func(tx *bolt.Tx) (func(), error) {
		if err := tx.Bucket([]byte(d.name)).Delete([]byte(key)); err != nil {
			return nil, err
		}
		return func() { _ = d.memory.Delete(key) }, nil
	}
}

// Batch applies ops in a single bolt transaction. The memory mirrors are only
// touched when the transaction commits.
func Batch(db *bolt.DB, ops ...Op) error {
	var commits []func()
	err := db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			commit, err := op(tx)
			if err != nil {
				return err
			}
			commits = append(commits, commit)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, commit := range commits {
		commit()
	}
	return nil
}
