// Package tesseract implements ocr.Engine with the Tesseract library via gosseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"certcheck/pkg/ocr"
)

// Engine runs one gosseract client per call, so concurrent passes share no state.
type Engine struct {
	Languages []string
	// Whitelist restricts recognized characters; empty keeps Tesseract's default.
	Whitelist string
}

// New returns an Engine for the given languages (default "eng").
func New(whitelist string, languages ...string) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{Languages: languages, Whitelist: whitelist}
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, img image.Image, pass ocr.Pass) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.Languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if e.Whitelist != "" {
		if err := client.SetWhitelist(e.Whitelist); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(pass.Mode)); err != nil {
		return "", fmt.Errorf("set psm %d: %w", pass.Mode, err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w", pass.Name, err)
	}
	return text, nil
}
