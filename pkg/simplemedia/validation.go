package simplemedia

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxUploadBytes caps a single upload.
const DefaultMaxUploadBytes int64 = 20 << 20

// DefaultAllowedTypes is the declared-type allow list used when none is configured.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
	"image/svg+xml",
	"image/avif",
	"image/heic",
	"video/mp4",
	"video/webm",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// UploadRules bounds what Upload accepts.
type UploadRules struct {
	MaxBytes     int64
	AllowedTypes map[string]struct{}
}

// NewUploadRules builds rules, applying defaults for zero values.
func NewUploadRules(maxBytes int64, allowedTypes []string) UploadRules {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[NormalizeContentType(t)] = struct{}{}
	}
	return UploadRules{MaxBytes: maxBytes, AllowedTypes: allowed}
}

// NormalizeContentType lowercases a media type and drops its parameters.
func NormalizeContentType(ct string) string {
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Validate returns every rule req breaks. sniffed is the type detected from
// the bytes: it stands in for a missing declared type and must itself be
// allowed, so a declared image type cannot carry arbitrary content.
func (r UploadRules) Validate(req *UploadRequest, sniffed string) []string {
	var violations []string

	size := int64(len(req.Data))
	switch {
	case size == 0:
		violations = append(violations, "file is empty")
	case size > r.MaxBytes:
		violations = append(violations, fmt.Sprintf("file exceeds maximum size of %d bytes", r.MaxBytes))
	}

	sniffed = NormalizeContentType(sniffed)
	declared := NormalizeContentType(req.ContentType)
	if declared == "" {
		declared = sniffed
	}
	if size > 0 {
		if _, ok := r.AllowedTypes[declared]; !ok {
			violations = append(violations, fmt.Sprintf("content type %q is not allowed", declared))
		}
		if _, ok := r.AllowedTypes[sniffed]; !ok && sniffed != declared {
			violations = append(violations, fmt.Sprintf("file content %q is not allowed", sniffed))
		}
	}

	if err := validate.Struct(req); err != nil {
		violations = append(violations, formatValidationErrors(err)...)
	}

	return violations
}

func formatValidationErrors(err error) []string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		out = append(out, fieldErr.Field()+" "+validationMessage(fieldErr))
	}
	sort.Strings(out)
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}
