package models

import "time"

// Certificate is a trusted registry entry. Rows are read in primary key
// order, which is the order matching considers them in.
type Certificate struct {
	ID              uint `gorm:"primaryKey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CertID          string  `gorm:"column:cert_id;size:64;uniqueIndex;not null" json:"cert_id"`
	StudentName     string  `gorm:"size:100" json:"student_name"`
	RollNumber      string  `gorm:"size:50" json:"roll_number"`
	Course          string  `gorm:"size:100" json:"course"`
	Institution     string  `gorm:"size:150" json:"institution"`
	YearOfPassing   int     `json:"year_of_passing"`
	MarksPercentage float64 `json:"marks_percentage"`
}
