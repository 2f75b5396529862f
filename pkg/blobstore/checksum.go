package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

const checksumVersion = 1

// Checksummed wraps a Store, prepending a version tag, payload length, and
// 32-byte content hash to every stored blob, and rejecting on load any blob
// whose hash does not match (§4.1).
type Checksummed struct {
	inner Store
}

// NewChecksummed wraps inner with checksum framing.
func NewChecksummed(inner Store) *Checksummed {
	return &Checksummed{inner: inner}
}

func (c *Checksummed) Store(ctx context.Context, path string, data []byte) error {
	sum := sha256.Sum256(data)
	framed := make([]byte, 0, 1+8+32+len(data))
	framed = append(framed, checksumVersion)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	framed = append(framed, lenBuf[:]...)
	framed = append(framed, sum[:]...)
	framed = append(framed, data...)
	return c.inner.Store(ctx, path, framed)
}

func (c *Checksummed) Load(ctx context.Context, path string) ([]byte, error) {
	framed, err := c.inner.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return unframe(path, framed)
}

func unframe(path string, framed []byte) ([]byte, error) {
	const headerLen = 1 + 8 + 32
	if len(framed) < headerLen {
		return nil, nimbuserr.New(nimbuserr.Corruption, "blob %s is shorter than the checksum header", path)
	}
	version := framed[0]
	if version != checksumVersion {
		return nil, nimbuserr.New(nimbuserr.Corruption, "blob %s has unknown checksum version %d", path, version)
	}
	length := binary.LittleEndian.Uint64(framed[1:9])
	wantSum := framed[9:headerLen]
	data := framed[headerLen:]
	if uint64(len(data)) != length {
		return nil, nimbuserr.New(nimbuserr.Corruption, "blob %s length mismatch: header says %d, payload is %d", path, length, len(data))
	}
	gotSum := sha256.Sum256(data)
	if string(gotSum[:]) != string(wantSum) {
		return nil, nimbuserr.New(nimbuserr.Corruption, "blob %s failed checksum verification", path)
	}
	return data, nil
}

func (c *Checksummed) Delete(ctx context.Context, path string) error {
	return c.inner.Delete(ctx, path)
}

func (c *Checksummed) List(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.List(ctx, prefix)
}

func (c *Checksummed) Exists(ctx context.Context, path string) (bool, error) {
	return c.inner.Exists(ctx, path)
}
