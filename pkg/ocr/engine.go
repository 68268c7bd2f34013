package ocr

import (
	"context"
	"image"
)

// PageMode is a page segmentation assumption; values follow Tesseract's psm
// numbering.
type PageMode int

const (
	PageModeBlock  PageMode = 6
	PageModeLine   PageMode = 7
	PageModeSparse PageMode = 11
)

// Pass is one OCR configuration.
type Pass struct {
	Name string
	Mode PageMode
}

// DefaultPasses is a dense block, a single line, then sparse text. The order
// decides ties between equally long results.
var DefaultPasses = []Pass{
	{Name: "block", Mode: PageModeBlock},
	{Name: "line", Mode: PageModeLine},
	{Name: "sparse", Mode: PageModeSparse},
}

// Engine recognizes text in a preprocessed image under one pass
// configuration. Implementations must be safe for concurrent calls.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, pass Pass) (string, error)
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc func(ctx context.Context, img image.Image, pass Pass) (string, error)

func (f EngineFunc) Recognize(ctx context.Context, img image.Image, pass Pass) (string, error) {
	return f(ctx, img, pass)
}
