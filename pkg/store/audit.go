package store

import (
	"context"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"certcheck/models"
	"certcheck/pkg/logging"
	"certcheck/pkg/verify"
)

// MaxLoggedText bounds the extracted text kept in an audit row.
const MaxLoggedText = 200

// Meta is the context an audit row records next to the Result.
type Meta struct {
	RequestID string
	Filename  string
	Verifier  string
	At        time.Time
}

// NewLogEntry maps every Result field plus meta into an audit row.
func NewLogEntry(res *verify.Result, meta Meta) models.VerificationLog {
	at := meta.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry := models.VerificationLog{
		RequestID:        meta.RequestID,
		CertID:           orNA(res.CandidateID),
		NormalizedID:     res.NormalizedID,
		DetectedCertID:   models.NotAvailable,
		ExtractedText:    truncateRunes(res.Text, MaxLoggedText),
		Result:           string(res.Status),
		Similarity:       res.Similarity,
		Source:           string(res.Source),
		OCRPass:          res.Pass,
		UploadedFilename: meta.Filename,
		Verifier:         meta.Verifier,
		Timestamp:        at,
	}
	if res.Record != nil {
		entry.DetectedCertID = res.Record.Identifier
	}
	return entry
}

func orNA(s string) string {
	if s == "" {
		return models.NotAvailable
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// AuditLog appends and reads verification audit rows.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) Append(ctx context.Context, entry *models.VerificationLog) error {
	if err := a.db.WithContext(ctx).Create(entry).Error; err != nil {
		return logging.NewOperationError("store.audit_append", entry.RequestID, err)
	}
	return nil
}

// List returns the newest rows first.
func (a *AuditLog) List(ctx context.Context, limit int) ([]models.VerificationLog, error) {
	var rows []models.VerificationLog
	q := a.db.WithContext(ctx).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, logging.NewOperationError("store.audit_list", "", err)
	}
	return rows, nil
}

// Filter narrows Summary and Between. Zero fields do not filter.
type Filter struct {
	From, To time.Time
	Verifier string
	Result   verify.Status
}

func (a *AuditLog) scope(ctx context.Context, f Filter) *gorm.DB {
	q := a.db.WithContext(ctx).Model(&models.VerificationLog{})
	if !f.From.IsZero() {
		q = q.Where("timestamp >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("timestamp < ?", f.To)
	}
	if f.Verifier != "" {
		q = q.Where("verifier = ?", f.Verifier)
	}
	if f.Result != "" {
		q = q.Where("result = ?", string(f.Result))
	}
	return q
}

// Summary counts rows per result status.
func (a *AuditLog) Summary(ctx context.Context, f Filter) (map[string]int64, error) {
	type row struct {
		Result string
		N      int64
	}
	var rows []row
	if err := a.scope(ctx, f).Select("result, count(*) as n").Group("result").Scan(&rows).Error; err != nil {
		return nil, logging.NewOperationError("store.audit_summary", "", err)
	}
	out := map[string]int64{
		string(verify.StatusValid):       0,
		string(verify.StatusFake):        0,
		string(verify.StatusNotDetected): 0,
	}
	for _, r := range rows {
		out[r.Result] = r.N
	}
	return out, nil
}

// Between returns matching rows oldest first.
func (a *AuditLog) Between(ctx context.Context, f Filter) ([]models.VerificationLog, error) {
	var rows []models.VerificationLog
	if err := a.scope(ctx, f).Order("id").Find(&rows).Error; err != nil {
		return nil, logging.NewOperationError("store.audit_between", "", err)
	}
	return rows, nil
}
