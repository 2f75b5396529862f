package blobstore

import (
	"context"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

var rootBucket = []byte("blobs")

// BoltStore is a single-file bbolt-backed Store, an alternative to FSStore
// for deployments that prefer one embedded database file over a directory
// tree of blobs (grounded on the teacher's own bbolt-backed BoltStore).
// bbolt's single-writer transaction model already serializes concurrent
// Store calls, satisfying the capability's atomicity requirement.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "opening bolt blobstore %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "initializing bolt blobstore %s", path)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Close() error { return b.db.Close() }

func (b *BoltStore) Store(_ context.Context, path string, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put([]byte(path), data)
	})
	if err != nil {
		return nimbuserr.Wrap(nimbuserr.IO, err, "storing blob %s", path)
	}
	return nil
}

func (b *BoltStore) Load(_ context.Context, path string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get([]byte(path))
		if v == nil {
			return nimbuserr.New(nimbuserr.NotFound, "blob %s not found", path)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (b *BoltStore) Delete(_ context.Context, path string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Delete([]byte(path))
	})
	if err != nil {
		return nimbuserr.Wrap(nimbuserr.IO, err, "deleting blob %s", path)
	}
	return nil
}

func (b *BoltStore) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (b *BoltStore) Exists(_ context.Context, path string) (bool, error) {
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(rootBucket).Get([]byte(path)) != nil
		return nil
	})
	return found, err
}
