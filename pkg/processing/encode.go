package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/shotcoach/internal/utils"
)

// Format is an output encoding
type Format string

const (
	JPEG Format = "jpg"
	PNG  Format = "png"
	WebP Format = "webp"
)

// ParseFormat maps a name or file extension to a Format, defaulting to JPEG
func ParseFormat(name string) Format {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "png":
		return PNG
	case "webp":
		return WebP
	default:
		return JPEG
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case PNG:
		return "image/png"
	case WebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Encode writes img in the given format. quality applies to JPEG and lossy WebP.
func (p *Processor) Encode(w io.Writer, img image.Image, format Format, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var err error
	switch format {
	case PNG:
		err = png.Encode(w, img)
	case WebP:
		err = webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

// Save writes img to path using the format implied by its extension
func (p *Processor) Save(img image.Image, path string, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f, img, ParseFormat(utils.GetFileExtension(path)), quality); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeBase64 downsizes img to maxDim on its long side and returns base64 JPEG
// for vision models
func (p *Processor) EncodeBase64(img image.Image, maxDim, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		}
	}
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, JPEG, quality); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
