package models

import "time"

// NotAvailable fills identifier columns when nothing was detected or matched.
const NotAvailable = "N/A"

// VerificationLog is one audit row per verification attempt.
type VerificationLog struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RequestID string `gorm:"column:request_id;size:64;uniqueIndex" json:"request_id"`
	// CertID is the candidate identifier as read or typed, N/A when absent.
	CertID       string `gorm:"column:cert_id;size:64" json:"cert_id"`
	NormalizedID string `gorm:"size:64" json:"normalized_id"`
	// DetectedCertID is the registry identifier that matched, N/A otherwise.
	DetectedCertID   string    `gorm:"column:detected_cert_id;size:64" json:"detected_cert_id"`
	ExtractedText    string    `gorm:"type:text" json:"extracted_text"`
	Result           string    `gorm:"size:20;index" json:"result"`
	Similarity       float64   `json:"similarity"`
	Source           string    `gorm:"size:16" json:"source"`
	OCRPass          string    `gorm:"column:ocr_pass;size:16" json:"ocr_pass"`
	UploadedFilename string    `gorm:"size:200" json:"uploaded_filename"`
	Verifier         string    `gorm:"size:100;index" json:"verifier"`
	Timestamp        time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName keeps the table name short like the dashboard expects.
func (VerificationLog) TableName() string {
	return "logs"
}
