// Package tileformat maps layer image extensions to tile encoders.
package tileformat

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
)

// Default is the extension used when a layer does not name one.
const Default = "png"

// Format serializes rendered tiles in one image format.
type Format struct {
	Extension string
	MimeType  string
	encode    func(io.Writer, image.Image) error
}

// Encode writes img to w in this format.
func (f Format) Encode(w io.Writer, img image.Image) error {
	return f.encode(w, img)
}

var formats = map[string]Format{
	"png": {
		Extension: "png",
		MimeType:  "image/png",
		encode:    png.Encode,
	},
	"jpg": {
		Extension: "jpg",
		MimeType:  "image/jpeg",
		encode:    encodeJPEG,
	},
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}

// ForExtension returns the format for ext. An empty ext selects Default;
// "jpeg" is an alias of "jpg".
func ForExtension(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch ext {
	case "":
		ext = Default
	case "jpeg":
		ext = "jpg"
	}
	f, ok := formats[ext]
	if !ok {
		return Format{}, fmt.Errorf("unsupported tile format %q", ext)
	}
	return f, nil
}
