package simplemedia_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestUploadRules_Validate(t *testing.T) {
	rules := simplemedia.NewUploadRules(16, []string{"image/png", "IMAGE/JPEG"})

	valid := func() *simplemedia.UploadRequest {
		return &simplemedia.UploadRequest{
			Data:        []byte("0123456789"),
			FileName:    "a.png",
			ContentType: "image/png",
			EntityType:  "product",
			EntityID:    5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *simplemedia.UploadRequest)
		sniffed string
		want    []string
	}{
		{"valid", func(r *simplemedia.UploadRequest) {}, "image/png", nil},
		{"declared type with parameters", func(r *simplemedia.UploadRequest) { r.ContentType = "image/jpeg; charset=binary" }, "image/jpeg", nil},
		{"sniffed type used when undeclared", func(r *simplemedia.UploadRequest) { r.ContentType = "" }, "image/png", nil},
		{"empty file", func(r *simplemedia.UploadRequest) { r.Data = []byte{} }, "", []string{"file is empty"}},
		{"too large", func(r *simplemedia.UploadRequest) { r.Data = make([]byte, 17) }, "image/png", []string{"file exceeds maximum size of 16 bytes"}},
		{"type not allowed", func(r *simplemedia.UploadRequest) { r.ContentType = "text/html" }, "image/png", []string{`content type "text/html" is not allowed`}},
		{"declared and sniffed both disallowed", func(r *simplemedia.UploadRequest) { r.ContentType = "text/plain" }, "text/plain; charset=utf-8", []string{`content type "text/plain" is not allowed`}},
		{"content does not match allowed type", func(r *simplemedia.UploadRequest) {}, "text/plain; charset=utf-8", []string{`file content "text/plain" is not allowed`}},
		{"unrecognized content", func(r *simplemedia.UploadRequest) {}, "application/octet-stream", []string{`file content "application/octet-stream" is not allowed`}},
		{"undeclared and unsniffable", func(r *simplemedia.UploadRequest) { r.ContentType = "" }, "", []string{`content type "" is not allowed`}},
		{"missing file name", func(r *simplemedia.UploadRequest) { r.FileName = "" }, "image/png", []string{"file_name is required"}},
		{"negative sort order", func(r *simplemedia.UploadRequest) { r.SortOrder = -1 }, "image/png", []string{"sort_order must be at least 0"}},
		{"largest sort order", func(r *simplemedia.UploadRequest) { r.SortOrder = math.MaxInt32 }, "image/png", nil},
		{"sort order beyond int32", func(r *simplemedia.UploadRequest) { r.SortOrder = math.MaxInt32 + 1 }, "image/png", []string{"sort_order must be at most 2147483647"}},
		{"entity missing", func(r *simplemedia.UploadRequest) { r.EntityType = ""; r.EntityID = 0 }, "image/png", []string{
			"entity_id must be greater than 0",
			"entity_type is required",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			assert.Equal(t, tt.want, rules.Validate(req, tt.sniffed))
		})
	}
}

func TestNewUploadRules_Defaults(t *testing.T) {
	rules := simplemedia.NewUploadRules(0, nil)
	assert.Equal(t, simplemedia.DefaultMaxUploadBytes, rules.MaxBytes)
	assert.Len(t, rules.AllowedTypes, len(simplemedia.DefaultAllowedTypes))
	assert.Contains(t, rules.AllowedTypes, "image/png")
}

func TestNormalizeContentType(t *testing.T) {
	assert.Equal(t, "image/png", simplemedia.NormalizeContentType(" Image/PNG ; q=1"))
	assert.Equal(t, "", simplemedia.NormalizeContentType(""))
}
