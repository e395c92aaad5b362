// Package payload measures upload bodies while they stream into blob storage.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Meter counts and hashes the bytes read through it. The count, not any
// client-declared length, is the size recorded for an upload.
type Meter struct {
	reader io.Reader
	hash   hash.Hash
	n      int64
}

// NewMeter wraps r. When limit >= 0 at most limit bytes are read from r.
func NewMeter(r io.Reader, limit int64) *Meter {
	if limit >= 0 {
		r = io.LimitReader(r, limit)
	}
	return &Meter{reader: r, hash: sha256.New()}
}

func (m *Meter) Read(p []byte) (int, error) {
	n, err := m.reader.Read(p)
	if n > 0 {
		m.n += int64(n)
		m.hash.Write(p[:n])
	}
	return n, err
}

// Size returns the number of bytes read so far
func (m *Meter) Size() int64 {
	return m.n
}

// Checksum returns the hex SHA256 of the bytes read so far
func (m *Meter) Checksum() string {
	return hex.EncodeToString(m.hash.Sum(nil))
}

