// Package ocr turns a photographed or scanned certificate into flat text.
//
// The image is decoded, binarized by Preprocess and then read by an Engine
// under several page segmentation assumptions (see Extractor). The engine is
// an interface so tests can run without a recognition library installed;
// the Tesseract implementation lives in package tesseract.
package ocr

import (
	"context"
	"io"
)

// Read decodes raw, preprocesses it with opts and runs every pass. It
// returns the best attempt and all attempts in pass order. The only error is
// an *ImageLoadError.
func (e *Extractor) Read(ctx context.Context, raw io.Reader, opts PreprocessOptions) (Attempt, []Attempt, error) {
	img, err := Decode(raw)
	if err != nil {
		return Attempt{}, nil, err
	}
	attempts := e.Attempts(ctx, Preprocess(img, opts))
	return Best(attempts), attempts, nil
}
