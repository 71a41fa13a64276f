// Package storage persists provisioned resource records per deployment.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("not found")
)

// Record is the persisted state of one provisioned resource.
type Record struct {
	Deployment  string            `json:"deployment"`
	Address     string            `json:"address"`
	Kind        string            `json:"kind"`
	ProviderID  string            `json:"provider_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	DesiredHash string            `json:"desired_hash"`
	Version     int64             `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Store interface (kept minimal, allows swapping implementations).
type Store interface {
	SaveResource(ctx context.Context, r *Record) error
	GetResource(ctx context.Context, deployment, address string) (*Record, error)
	ListResources(ctx context.Context, deployment string) ([]*Record, error)
	DeleteResource(ctx context.Context, deployment, address string) error
	Close() error
}

// BadgerStore implements Store with Badger DB.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (Store, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // disable badger logs for test clarity
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// NewInMemoryStore opens a Badger store that never touches disk, for tests.
func NewInMemoryStore() (Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func resourceKey(deployment, address string) []byte {
	return []byte("resource:" + deployment + ":" + address)
}

func deploymentPrefix(deployment string) []byte {
	return []byte("resource:" + deployment + ":")
}

func (s *BadgerStore) SaveResource(ctx context.Context, r *Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return txn.Set(resourceKey(r.Deployment, r.Address), data)
	})
}

func (s *BadgerStore) GetResource(ctx context.Context, deployment, address string) (*Record, error) {
	var out Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(deployment, address))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListResources(ctx context.Context, deployment string) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := deploymentPrefix(deployment)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *BadgerStore) DeleteResource(ctx context.Context, deployment, address string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(resourceKey(deployment, address))
	})
}
