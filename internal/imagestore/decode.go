// Package imagestore decodes uploaded frames and puts them somewhere with a
// public URL.
package imagestore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// PlaceholderURL is recorded when the image could not be stored
const PlaceholderURL = "https://via.placeholder.com/640x480?text=Image+Upload+Failed"

var (
	ErrEmptyImage   = errors.New("image payload is empty")
	ErrInvalidImage = errors.New("image payload is not valid base64")
)

// Image is a decoded upload
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

var formats = map[string]struct{ contentType, ext string }{
	"jpeg": {"image/jpeg", "jpg"},
	"png":  {"image/png", "png"},
	"gif":  {"image/gif", "gif"},
	"webp": {"image/webp", "webp"},
	"bmp":  {"image/bmp", "bmp"},
}

// Decode accepts raw base64 or a data URL. Content type comes from the bytes,
// not the prefix; unknown formats are stored as JPEG.
func Decode(payload string) (*Image, error) {
	raw := payload
	if strings.HasPrefix(raw, "data:") {
		if i := strings.IndexByte(raw, ','); i >= 0 {
			raw = raw[i+1:]
		}
	}
	raw = strings.Join(strings.Fields(raw), "")
	if raw == "" {
		return nil, ErrEmptyImage
	}

	data, err := decodeBase64(raw)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	contentType, ext := sniff(data)
	return &Image{Data: data, ContentType: contentType, Ext: ext}, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, ErrInvalidImage
}

func sniff(data []byte) (string, string) {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if f, ok := formats[format]; ok {
			return f.contentType, f.ext
		}
	}
	detected := http.DetectContentType(data)
	for _, f := range formats {
		if f.contentType == detected {
			return f.contentType, f.ext
		}
	}
	return "image/jpeg", "jpg"
}

// ObjectName builds detection-<unix millis>-<random>.<ext>
func ObjectName(now time.Time, ext string) string {
	return fmt.Sprintf("detection-%d-%s.%s", now.UnixMilli(), uuid.NewString()[:8], ext)
}
