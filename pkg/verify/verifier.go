// Package verify decides whether a certificate identifier names a known
// registry entry and runs the full image-to-verdict pipeline.
package verify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"certcheck/pkg/certid"
	"certcheck/pkg/ocr"
)

// Registry supplies the trusted records in storage order. Each call returns
// a point-in-time snapshot; records added later are not seen by a
// verification already holding one.
type Registry interface {
	Snapshot(ctx context.Context) ([]Record, error)
}

// StaticRegistry is a fixed, in-memory Registry.
type StaticRegistry []Record

func (r StaticRegistry) Snapshot(context.Context) ([]Record, error) {
	out := make([]Record, len(r))
	copy(out, r)
	return out, nil
}

// Request is one verification. When ManualID is non-blank it replaces text
// extraction entirely and Image is not read.
type Request struct {
	Image    io.Reader
	ManualID string
}

// Verifier runs decode, preprocess, multi-pass OCR, identifier search and
// the registry decision.
type Verifier struct {
	extractor  *ocr.Extractor
	registry   Registry
	threshold  float64
	preprocess ocr.PreprocessOptions
	logger     *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(v *Verifier) { v.threshold = t }
}

// WithPreprocessOptions overrides ocr.DefaultPreprocessOptions.
func WithPreprocessOptions(o ocr.PreprocessOptions) Option {
	return func(v *Verifier) { v.preprocess = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// New builds a Verifier reading identifiers with extractor and matching them
// against registry.
func New(extractor *ocr.Extractor, registry Registry, opts ...Option) *Verifier {
	v := &Verifier{
		extractor:  extractor,
		registry:   registry,
		threshold:  DefaultThreshold,
		preprocess: ocr.DefaultPreprocessOptions(),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(v)
	}
	v.logger = v.logger.Named("verify")
	return v
}

// Threshold reports the similarity threshold in use.
func (v *Verifier) Threshold() float64 { return v.threshold }

// Verify runs one verification. Errors mean verification could not be
// attempted: an *ocr.ImageLoadError for undecodable input, or a registry
// failure. Unknown and undetected identifiers are ordinary Results.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	var (
		candidate string
		source    = SourceOCR
		pass      string
		strategy  string
		text      string
	)
	if manual := strings.TrimSpace(req.ManualID); manual != "" {
		candidate = strings.ToUpper(manual)
		source = SourceManual
	} else {
		if req.Image == nil {
			return nil, &ocr.ImageLoadError{Err: fmt.Errorf("no image supplied")}
		}
		best, _, err := v.extractor.Read(ctx, req.Image, v.preprocess)
		if err != nil {
			return nil, err
		}
		pass, text = best.Pass, best.Text
		if c, ok := certid.Find(text); ok {
			candidate, strategy = c.ID, c.Strategy
		}
	}

	var records []Record
	if certid.Normalize(candidate) != "" {
		var err error
		if records, err = v.registry.Snapshot(ctx); err != nil {
			return nil, fmt.Errorf("registry snapshot: %w", err)
		}
	}
	res := Decide(candidate, records, v.threshold)
	res.Source, res.Pass, res.Strategy, res.Text = source, pass, strategy, text

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.String("source", string(source)),
		zap.String("candidate", res.CandidateID),
		zap.Float64("similarity", res.Similarity),
		zap.Int("registry_size", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res.Record != nil {
		fields = append(fields, zap.String("matched", res.Record.Identifier))
	}
	v.logger.Info("certificate verified", fields...)
	return &res, nil
}
