// Package reverify retries verifications that found no identifier, using
// an enhanced copy of the stored upload and alternate binarization settings.
package reverify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"certcheck/models"
	"certcheck/pkg/ocr"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

// VerifierName marks the audit rows written by a retry.
const VerifierName = "reverify"

type Store interface {
	Between(ctx context.Context, f store.Filter) ([]models.VerificationLog, error)
	Append(ctx context.Context, entry *models.VerificationLog) error
}

// RetryOptions are the preprocessing settings for the second attempt: box
// mean threshold and a 2x2 opening to drop speckle the first pass kept.
func RetryOptions() ocr.PreprocessOptions {
	o := ocr.DefaultPreprocessOptions()
	o.Method = ocr.ThresholdMean
	o.OpenSize = 2
	return o
}

// Enhance sharpens and raises contrast before preprocessing.
func Enhance(img image.Image) image.Image {
	return imaging.AdjustContrast(imaging.Sharpen(img, 2.0), 30)
}

type Options struct {
	UploadDir string
	DryRun    bool
	Filter    store.Filter
}

// Run retries every matching not_detected row and returns how many now
// yield an identifier. Without DryRun each retry appends a new audit row;
// the original row is left untouched.
func Run(ctx context.Context, w io.Writer, v *verify.Verifier, st Store, opts Options, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := opts.Filter
	f.Result = verify.StatusNotDetected
	rows, err := st.Between(ctx, f)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, row := range rows {
		if row.Verifier == VerifierName || row.UploadedFilename == "" {
			continue
		}
		path := filepath.Join(opts.UploadDir, filepath.Base(row.UploadedFilename))
		img, err := ocr.Open(path)
		if err != nil {
			logger.Warn("open upload failed", zap.String("file", path), zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, Enhance(img), imaging.PNG); err != nil {
			logger.Warn("encode enhanced image failed", zap.String("file", path), zap.Error(err))
			continue
		}
		res, err := v.Verify(ctx, verify.Request{Image: &buf})
		if err != nil {
			return recovered, err
		}
		if res.Status == verify.StatusNotDetected {
			logger.Info("still no identifier", zap.Uint("log_id", row.ID), zap.String("file", row.UploadedFilename))
			continue
		}
		recovered++
		if opts.DryRun {
			fmt.Fprintf(w, "DRY: log id=%d file=%s would become %s candidate=%s similarity=%.4f\n", row.ID, row.UploadedFilename, res.Status, res.CandidateID, res.Similarity)
			continue
		}
		entry := store.NewLogEntry(res, store.Meta{
			RequestID: fmt.Sprintf("%s-%d", VerifierName, row.ID),
			Filename:  row.UploadedFilename,
			Verifier:  VerifierName,
		})
		if err := st.Append(ctx, &entry); err != nil {
			logger.Error("audit append failed", zap.Uint("log_id", row.ID), zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "log id=%d file=%s -> %s candidate=%s similarity=%.4f\n", row.ID, row.UploadedFilename, res.Status, res.CandidateID, res.Similarity)
	}
	return recovered, nil
}
