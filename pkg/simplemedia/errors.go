package simplemedia

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrMediaNotFound indicates a media record was not found
	ErrMediaNotFound = errors.New("media not found")

	// ErrObjectNotFound indicates a stored object was not found in a blob store
	ErrObjectNotFound = errors.New("object not found")

	// ErrDuplicateMedia indicates a live record already associates the hash with the entity
	ErrDuplicateMedia = errors.New("media already associated with entity")

	// ErrStorageBackendNotFound indicates a storage backend was not found
	ErrStorageBackendNotFound = errors.New("storage backend not found")

	// ErrUnsupportedHash indicates the digest algorithm cannot be used for content addressing
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")
)

// Kind classifies failures surfaced by the service.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidationFailed is bad input. Nothing was stored or persisted.
	KindValidationFailed
	// KindProcessingFailed is a store, hash or persistence failure after validation passed.
	KindProcessingFailed
	// KindNotFound is a lookup miss on a read path.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidationFailed:
		return "validation_failed"
	case KindProcessingFailed:
		return "processing_failed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by Service operations.
type Error struct {
	Kind   Kind
	Op     string
	Entity string // kind of thing the operation touched, e.g. "media" or "object"
	ID     string

	// Violations lists every rule a rejected upload broke.
	Violations []string

	// Retryable is set when repeating the call may succeed.
	Retryable bool

	// Orphaned is set when bytes reached the blob store but no record points at them.
	Orphaned  bool
	ObjectKey string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Kind)
	if e.Entity != "" {
		fmt.Fprintf(&b, " for %s", e.Entity)
		if e.ID != "" {
			fmt.Fprintf(&b, " %s", e.ID)
		}
	}
	if len(e.Violations) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Violations, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidationFailed(err error) bool { return KindOf(err) == KindValidationFailed }

func IsProcessingFailed(err error) bool { return KindOf(err) == KindProcessingFailed }

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func validationFailed(op string, violations []string) *Error {
	return &Error{Kind: KindValidationFailed, Op: op, Entity: "upload", Violations: violations}
}

func processingFailed(op, entity, id string, err error) *Error {
	return &Error{Kind: KindProcessingFailed, Op: op, Entity: entity, ID: id, Err: err}
}

func notFound(op, entity, id string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, ID: id, Err: err}
}
