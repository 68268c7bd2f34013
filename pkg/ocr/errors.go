package ocr

import (
	"errors"
	"fmt"
)

// ErrImageLoad is matched by every ImageLoadError via errors.Is.
var ErrImageLoad = errors.New("image could not be loaded")

// ImageLoadError is returned when raw bytes cannot be decoded as an image.
// It is fatal for a verification; no fallback image is synthesized.
type ImageLoadError struct {
	Source string
	Err    error
}

func (e *ImageLoadError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("load image %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("load image: %v", e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

func (e *ImageLoadError) Is(target error) bool { return target == ErrImageLoad }
