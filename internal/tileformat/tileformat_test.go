package tileformat

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestForExtension(t *testing.T) {
	tests := []struct {
		ext     string
		want    string
		wantErr bool
	}{
		{"", "png", false},
		{"png", "png", false},
		{".PNG", "png", false},
		{"jpeg", "jpg", false},
		{" jpg ", "jpg", false},
		{"webp", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			f, err := ForExtension(tt.ext)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ForExtension(%q) error = %v, wantErr %v", tt.ext, err, tt.wantErr)
			}
			if f.Extension != tt.want {
				t.Errorf("ForExtension(%q).Extension = %q, want %q", tt.ext, f.Extension, tt.want)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 2, color.RGBA{R: 200, A: 255})

	for _, ext := range []string{"png", "jpg"} {
		f, err := ForExtension(ext)
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := f.Encode(&buf, img); err != nil {
			t.Fatalf("%s: Encode failed: %v", ext, err)
		}
		decoded, format, err := image.Decode(&buf)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", ext, err)
		}
		if decoded.Bounds() != img.Bounds() {
			t.Errorf("%s: bounds = %v, want %v", ext, decoded.Bounds(), img.Bounds())
		}
		if want := map[string]string{"png": "png", "jpg": "jpeg"}[ext]; format != want {
			t.Errorf("%s: decoded format = %q, want %q", ext, format, want)
		}
	}
}
