// Package objectkey derives blob store keys from content hashes. Keys never
// depend on file names or entities, so identical bytes always land on the
// same key in a given store.
package objectkey

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the key prefix applied when none is configured.
const DefaultPrefix = "media"

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for a lowercase hex content hash
	GenerateKey(contentHash string) string
}

// FlatGenerator puts every object directly under Prefix.
// Key: media/9f86d081884c7d65...
type FlatGenerator struct {
	Prefix string
}

func NewFlatGenerator(prefix string) *FlatGenerator {
	return &FlatGenerator{Prefix: sanitizePathComponent(prefix)}
}

func (g *FlatGenerator) GenerateKey(contentHash string) string {
	return join(g.Prefix, contentHash)
}

// ShardedGenerator provides Git-style sharded storage keyed by hash prefix.
// Key: media/objects/9f/86/9f86d081884c7d65...
type ShardedGenerator struct {
	Prefix string
	// ShardLength controls how many characters each shard directory uses (default: 2)
	ShardLength int
	// Depth is the number of shard directories (default: 2)
	Depth int
}

func NewShardedGenerator(prefix string) *ShardedGenerator {
	return &ShardedGenerator{
		Prefix:      sanitizePathComponent(prefix),
		ShardLength: 2,
		Depth:       2,
	}
}

func (g *ShardedGenerator) GenerateKey(contentHash string) string {
	hash := strings.ToLower(contentHash)
	shardLength := g.ShardLength
	if shardLength <= 0 {
		shardLength = 2
	}
	depth := g.Depth
	if depth <= 0 {
		depth = 1
	}

	parts := make([]string, 0, depth+3)
	if g.Prefix != "" {
		parts = append(parts, g.Prefix)
	}
	parts = append(parts, "objects")
	for i := 0; i < depth; i++ {
		start := i * shardLength
		end := start + shardLength
		if end > len(hash) {
			break
		}
		parts = append(parts, hash[start:end])
	}
	parts = append(parts, hash)
	return strings.Join(parts, "/")
}

// New returns a generator by name: "flat" or "sharded".
func New(kind, prefix string) (Generator, error) {
	switch kind {
	case "", "sharded", "git-like":
		return NewShardedGenerator(prefix), nil
	case "flat":
		return NewFlatGenerator(prefix), nil
	default:
		return nil, fmt.Errorf("unsupported object key generator: %s", kind)
	}
}

func join(prefix, hash string) string {
	if prefix == "" {
		return strings.ToLower(hash)
	}
	return prefix + "/" + strings.ToLower(hash)
}

func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return strings.Trim(strings.ToLower(replacer.Replace(component)), "/")
}
