package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

// FSStore is a filesystem-backed Store: Store publishes atomically via
// write-to-tmp-then-rename, the same recipe the storage engine itself uses
// for the meta-store (§4.4, §4.7).
type FSStore struct {
	root string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewFSStore roots a store at dir, creating it if necessary.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "creating blobstore root %s", dir)
	}
	return &FSStore{root: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (f *FSStore) pathLock(path string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[path]
	if !ok {
		l = &sync.Mutex{}
		f.locks[path] = l
	}
	return l
}

func (f *FSStore) resolve(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(path))
}

func (f *FSStore) Store(_ context.Context, path string, data []byte) error {
	lock := f.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nimbuserr.Wrap(nimbuserr.IO, err, "creating parent dir for %s", path)
	}
	tmp := full + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nimbuserr.Wrap(nimbuserr.IO, err, "writing temp blob for %s", path)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return nimbuserr.Wrap(nimbuserr.IO, err, "publishing blob %s", path)
	}
	return nil
}

func (f *FSStore) Load(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(f.resolve(path))
	if os.IsNotExist(err) {
		return nil, nimbuserr.New(nimbuserr.NotFound, "blob %s not found", path)
	}
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "reading blob %s", path)
	}
	return data, nil
}

// LoadRange reads length bytes starting at offset, satisfying RangeReader.
func (f *FSStore) LoadRange(_ context.Context, path string, offset, length int64) ([]byte, error) {
	file, err := os.Open(f.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nimbuserr.New(nimbuserr.NotFound, "blob %s not found", path)
		}
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "opening blob %s", path)
	}
	defer file.Close()

	buf := make([]byte, length)
	n, err := file.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "reading range of blob %s", path)
	}
	return buf[:n], nil
}

func (f *FSStore) Delete(_ context.Context, path string) error {
	lock := f.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(f.resolve(path)); err != nil && !os.IsNotExist(err) {
		return nimbuserr.Wrap(nimbuserr.IO, err, "deleting blob %s", path)
	}
	return nil
}

func (f *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	base := f.resolve(prefix)
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "listing blobs under %s", prefix)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "blob-tmp-") || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		out = append(out, filepath.ToSlash(filepath.Join(prefix, e.Name())))
	}
	sort.Strings(out)
	return out, nil
}

func (f *FSStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(f.resolve(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, nimbuserr.Wrap(nimbuserr.IO, err, "statting blob %s", path)
	}
	return true, nil
}
