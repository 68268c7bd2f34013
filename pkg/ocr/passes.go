package ocr

import (
	"context"
	"image"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Attempt is the flattened text one pass produced.
type Attempt struct {
	Pass string `json:"pass"`
	Text string `json:"text"`
}

// Extractor runs every configured pass over the same image and keeps the
// most informative output.
type Extractor struct {
	engine Engine
	passes []Pass
	logger *zap.Logger
}

// NewExtractor builds an Extractor. With no passes DefaultPasses is used.
func NewExtractor(engine Engine, logger *zap.Logger, passes ...Pass) *Extractor {
	if len(passes) == 0 {
		passes = DefaultPasses
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{engine: engine, passes: passes, logger: logger.Named("ocr")}
}

// Attempts runs all passes concurrently and returns one Attempt per pass, in
// pass order. A failing pass is logged and contributes empty text.
func (e *Extractor) Attempts(ctx context.Context, img image.Image) []Attempt {
	out := make([]Attempt, len(e.passes))
	var g errgroup.Group
	for i, p := range e.passes {
		g.Go(func() error {
			out[i].Pass = p.Name
			text, err := e.engine.Recognize(ctx, img, p)
			if err != nil {
				e.logger.Warn("ocr pass failed", zap.String("pass", p.Name), zap.Error(err))
				return nil
			}
			out[i].Text = flattenText(text)
			return nil
		})
	}
	_ = g.Wait()
	for _, a := range out {
		e.logger.Debug("ocr pass", zap.String("pass", a.Pass), zap.Int("length", utf8.RuneCountInString(a.Text)), zap.String("snippet", snippet(a.Text, 80)))
	}
	return out
}

// Extract returns the best attempt over all passes. It never fails; the
// worst case is an empty Attempt.
func (e *Extractor) Extract(ctx context.Context, img image.Image) Attempt {
	return Best(e.Attempts(ctx, img))
}

// Best picks the attempt with the most characters. The earliest attempt
// wins ties.
func Best(attempts []Attempt) Attempt {
	var best Attempt
	bestLen := -1
	for _, a := range attempts {
		if n := utf8.RuneCountInString(a.Text); n > bestLen {
			best, bestLen = a, n
		}
	}
	return best
}
