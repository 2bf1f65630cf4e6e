package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed generates a non-zero seed from crypto/rand for runs configured
// without one. The seed is logged and stored with the run so it can be replayed.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	// Keep it positive so it round-trips through SQLite INTEGER and TOML.
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed, nil
}
