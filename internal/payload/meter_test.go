package payload

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestMeterCountsAndHashes(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 1000)
	m := NewMeter(bytes.NewReader(data), -1)

	out, err := io.ReadAll(m)
	require.NoError(t, err)

	assert.Equal(t, data, out)
	assert.Equal(t, int64(len(data)), m.Size())
	assert.Equal(t, sha256Hex(data), m.Checksum())
}

func TestMeterStopsAtLimit(t *testing.T) {
	data := make([]byte, 100)
	m := NewMeter(bytes.NewReader(data), 11)

	out, err := io.ReadAll(m)
	require.NoError(t, err)

	assert.Len(t, out, 11)
	assert.Equal(t, int64(11), m.Size())
}

func TestMeterEmptyBody(t *testing.T) {
	m := NewMeter(bytes.NewReader(nil), 10)

	_, err := io.ReadAll(m)
	require.NoError(t, err)

	assert.Equal(t, int64(0), m.Size())
	assert.Equal(t, sha256Hex(nil), m.Checksum())
}
