package simplemedia

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Inspection is what the bytes themselves say about an upload.
type Inspection struct {
	// SniffedType is the media type detected from magic numbers.
	SniffedType string
	Image       *Image
	Video       *Video
}

// Inspect sniffs the content type and, for decodable images, reads the
// dimensions from the header without decoding pixel data.
func Inspect(data []byte) Inspection {
	mt := mimetype.Detect(data)
	out := Inspection{SniffedType: NormalizeContentType(mt.String())}

	switch {
	case strings.HasPrefix(out.SniffedType, "image/"):
		img := &Image{Format: strings.TrimPrefix(mt.Extension(), ".")}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			img.Width = cfg.Width
			img.Height = cfg.Height
		}
		out.Image = img
	case strings.HasPrefix(out.SniffedType, "video/"):
		out.Video = &Video{Container: strings.TrimPrefix(mt.Extension(), ".")}
	}

	return out
}
