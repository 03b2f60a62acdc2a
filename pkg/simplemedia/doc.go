// Package simplemedia provides media upload with content-addressed
// deduplication on top of pluggable repository and blob storage backends.
//
// Every upload is hashed with SHA-256. The hex digest is the dedup key: bytes
// with a known digest are never written to the blob store twice, and every
// entity (a product, a listing, a user profile) that uploads them gets its
// own association record pointing at the shared object. Uploading the same
// bytes to the same entity again is a no-op that returns the existing record.
//
// Repositories (memory, Postgres) and blob stores (memory, filesystem, S3)
// live in subpackages. Uniqueness of (hash, entity) is enforced by the
// repository, which lets concurrent uploads race safely: the loser observes
// ErrDuplicateMedia and falls back to the existing record.
package simplemedia
