package client

import (
	"context"
	"errors"

	"github.com/menta2k/shotcoach/pkg/types"
)

// ErrNoSubject is returned when the model reports no usable subject
var ErrNoSubject = errors.New("no subject found")

// VisionClient locates the main subject of an image with a vision model
type VisionClient interface {
	LocateSubject(ctx context.Context, model, prompt, imgB64 string) (*types.Location, error)
}
