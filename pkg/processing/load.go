// Package processing loads, validates and encodes images.
package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for images that cannot be processed
var ErrInvalidImage = errors.New("invalid image")

// Limits bound the images accepted by the processor
type Limits struct {
	MaxWidth      int
	MaxHeight     int
	MaxDownload   int64
	ClientTimeout time.Duration
}

// DefaultLimits returns limits suitable for phone photos
func DefaultLimits() Limits {
	return Limits{
		MaxWidth:      12000,
		MaxHeight:     12000,
		MaxDownload:   50 << 20,
		ClientTimeout: 30 * time.Second,
	}
}

// Processor handles image I/O
type Processor struct {
	limits     Limits
	httpClient *http.Client
}

// NewProcessor creates a processor with default limits
func NewProcessor() *Processor {
	return NewProcessorWithLimits(DefaultLimits())
}

// NewProcessorWithLimits creates a processor with custom limits
func NewProcessorWithLimits(limits Limits) *Processor {
	return &Processor{
		limits:     limits,
		httpClient: &http.Client{Timeout: limits.ClientTimeout},
	}
}

// ValidateImage rejects empty and oversized images
func (p *Processor) ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: empty bounds %v", ErrInvalidImage, b)
	}
	if (p.limits.MaxWidth > 0 && b.Dx() > p.limits.MaxWidth) || (p.limits.MaxHeight > 0 && b.Dy() > p.limits.MaxHeight) {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrInvalidImage, b.Dx(), b.Dy(), p.limits.MaxWidth, p.limits.MaxHeight)
	}
	return nil
}

// Load reads an image from a file path or an http(s) URL
func (p *Processor) Load(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadURL(ctx, source)
	}
	return p.LoadFile(source)
}

// LoadFile reads an image file, including WebP
func (p *Processor) LoadFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		if err := p.ValidateImage(img); err != nil {
			return nil, err
		}
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadURL downloads an image
func (p *Processor) LoadURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "shotcoach/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	return p.Read(resp.Body)
}

// Read decodes an image from r, reading at most the download limit
func (p *Processor) Read(r io.Reader) (image.Image, error) {
	if p.limits.MaxDownload > 0 {
		r = io.LimitReader(r, p.limits.MaxDownload+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}
	if p.limits.MaxDownload > 0 && int64(len(data)) > p.limits.MaxDownload {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, p.limits.MaxDownload)
	}
	return p.Decode(data)
}

// Decode decodes jpeg, png, gif or webp data and validates the result
func (p *Processor) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if img, err = webp.Decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: unknown or unsupported format", ErrInvalidImage)
		}
	}
	if err := p.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}
