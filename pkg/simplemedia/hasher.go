package simplemedia

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// ContentHashLength is the length of a hex-encoded 256-bit digest.
const ContentHashLength = 64

// Hasher computes content digests used as dedup keys.
type Hasher struct {
	algo crypto.Hash
}

// NewHasher returns a hasher for a 256-bit digest algorithm. It fails when the
// algorithm is not linked into the binary or has a different digest size.
func NewHasher(algo crypto.Hash) (*Hasher, error) {
	if !algo.Available() {
		return nil, fmt.Errorf("%w: %v not available", ErrUnsupportedHash, algo)
	}
	if algo.Size()*2 != ContentHashLength {
		return nil, fmt.Errorf("%w: %v produces %d-bit digests", ErrUnsupportedHash, algo, algo.Size()*8)
	}
	return &Hasher{algo: algo}, nil
}

// DefaultHashAlgorithm names the algorithm NewHasherByName picks for "".
const DefaultHashAlgorithm = "sha256"

// NewHasherByName resolves a configured algorithm name, "sha256" or
// "sha512/256". Switching algorithms on a populated store breaks dedup
// against existing records.
func NewHasherByName(name string) (*Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256", "sha-256":
		return NewHasher(crypto.SHA256)
	case "sha512/256", "sha512_256", "sha-512/256":
		return NewHasher(crypto.SHA512_256)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, name)
	}
}

// NewSHA256Hasher returns the default hasher.
func NewSHA256Hasher() *Hasher {
	return &Hasher{algo: crypto.SHA256}
}

// Algorithm returns the digest algorithm in use.
func (h *Hasher) Algorithm() crypto.Hash {
	return h.algo
}

// Sum consumes r to EOF and returns the lowercase hex digest.
func (h *Hasher) Sum(r io.Reader) (string, error) {
	d := h.algo.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// SumBytes hashes an in-memory buffer.
func (h *Hasher) SumBytes(data []byte) (string, error) {
	return h.Sum(bytes.NewReader(data))
}
