package simplemedia

import "strings"

// DefaultContentType is returned for unknown or missing extensions.
const DefaultContentType = "application/octet-stream"

var imageTypesByExtension = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"avif": "image/avif",
	"heic": "image/heic",
}

// ResolveContentType maps a filename's extension to a media type.
func ResolveContentType(filename string) string {
	ext := FileExtension(filename)
	if ext == "" {
		return DefaultContentType
	}
	if ct, ok := imageTypesByExtension[ext]; ok {
		return ct
	}
	return DefaultContentType
}

// FileExtension returns the lowercase text after the last "." of filename,
// or "" when there is none.
func FileExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}
