// Package tooling wires the shared pieces of the operator commands: logger,
// database handle and a Tesseract backed verifier, all configured from the
// same environment variables as the server.
package tooling

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"certcheck/pkg/logging"
	"certcheck/pkg/ocr"
	"certcheck/pkg/ocr/tesseract"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

// Logger builds the zap logger for a command from LOG_LEVEL.
func Logger() *zap.Logger {
	logger, err := logging.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	return logger
}

// MustDB opens DB_DSN or exits through logger.Fatal.
func MustDB(logger *zap.Logger) *gorm.DB {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	gdb, err := store.Open(ctx, os.Getenv("DB_DSN"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	return gdb
}

// Threshold reads MATCH_THRESHOLD, defaulting to verify.DefaultThreshold.
func Threshold() float64 {
	if f, err := strconv.ParseFloat(os.Getenv("MATCH_THRESHOLD"), 64); err == nil && f >= 0 && f < 1 {
		return f
	}
	return verify.DefaultThreshold
}

// Engine returns the Tesseract engine configured by OCR_LANG and OCR_WHITELIST.
func Engine() *tesseract.Engine {
	var langs []string
	for _, l := range strings.FieldsFunc(os.Getenv("OCR_LANG"), func(r rune) bool { return r == '+' || r == ',' }) {
		langs = append(langs, strings.TrimSpace(l))
	}
	return tesseract.New(os.Getenv("OCR_WHITELIST"), langs...)
}

// NewVerifier builds a verifier on the Tesseract engine. Extra options are
// applied after the environment threshold.
func NewVerifier(registry verify.Registry, logger *zap.Logger, opts ...verify.Option) *verify.Verifier {
	all := append([]verify.Option{verify.WithThreshold(Threshold()), verify.WithLogger(logger)}, opts...)
	return verify.New(ocr.NewExtractor(Engine(), logger), registry, all...)
}
