package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"certcheck/models"
	"certcheck/pkg/store"
)

// Source is the slice of the audit log a report reads.
type Source interface {
	Summary(ctx context.Context, f store.Filter) (map[string]int64, error)
	Between(ctx context.Context, f store.Filter) ([]models.VerificationLog, error)
}

// MonthRange returns the UTC bounds [start, end) of month (YYYY-MM).
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Run prints a month-bounded verdict report, optionally for one verifier,
// and optionally lists the matching audit rows.
func Run(ctx context.Context, w io.Writer, src Source, month, verifier string, list bool) error {
	start, end, err := MonthRange(month)
	if err != nil {
		return err
	}
	f := store.Filter{From: start, To: end, Verifier: verifier}
	counts, err := src.Summary(ctx, f)
	if err != nil {
		return err
	}
	who := verifier
	if who == "" {
		who = "all"
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	fmt.Fprintf(w, "Report for verifier=%s month=%s (UTC):\n", who, month)
	fmt.Fprintf(w, "  records=%d valid=%d fake=%d not_detected=%d\n", total, counts["valid"], counts["fake"], counts["not_detected"])

	if list {
		rows, err := src.Between(ctx, f)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%d|%s|%s|%s|%.4f|%s|%s\n", r.ID, r.UploadedFilename, r.CertID, r.Result, r.Similarity, r.Verifier, r.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}
