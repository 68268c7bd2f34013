// Package store persists the certificate registry and the verification
// audit log with gorm.
package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"certcheck/models"
	"certcheck/pkg/logging"
	"certcheck/pkg/verify"
)

// ErrDuplicate is returned when a certificate identifier already exists.
var ErrDuplicate = errors.New("certificate already registered")

// Registry reads and maintains the trusted certificates table.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Snapshot implements verify.Registry: every certificate in primary key order.
func (r *Registry) Snapshot(ctx context.Context) ([]verify.Record, error) {
	var certs []models.Certificate
	if err := r.db.WithContext(ctx).Order("id").Find(&certs).Error; err != nil {
		return nil, logging.NewOperationError("store.registry_snapshot", "", err)
	}
	out := make([]verify.Record, len(certs))
	for i, c := range certs {
		out[i] = ToRecord(c)
	}
	return out, nil
}

// List returns up to limit certificates in registry order; limit <= 0 means all.
func (r *Registry) List(ctx context.Context, limit int) ([]models.Certificate, error) {
	var certs []models.Certificate
	q := r.db.WithContext(ctx).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&certs).Error; err != nil {
		return nil, logging.NewOperationError("store.registry_list", "", err)
	}
	return certs, nil
}

// Add inserts a new certificate. The identifier is stored as given but
// trimmed; ErrDuplicate reports an existing identifier.
func (r *Registry) Add(ctx context.Context, c *models.Certificate) error {
	c.CertID = strings.TrimSpace(c.CertID)
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return logging.NewOperationError("store.registry_add", "", err)
	}
	return nil
}

// Upsert inserts c or overwrites the descriptive fields of the row with the
// same identifier.
func (r *Registry) Upsert(ctx context.Context, c *models.Certificate) error {
	c.CertID = strings.TrimSpace(c.CertID)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cert_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"student_name", "roll_number", "course", "institution", "year_of_passing", "marks_percentage", "updated_at"}),
	}).Create(c).Error
	return logging.NewOperationError("store.registry_upsert", "", err)
}

// ToRecord converts a stored certificate into the read-only matching record.
func ToRecord(c models.Certificate) verify.Record {
	return verify.Record{
		Identifier:      c.CertID,
		StudentName:     c.StudentName,
		RollNumber:      c.RollNumber,
		Course:          c.Course,
		Institution:     c.Institution,
		YearOfPassing:   c.YearOfPassing,
		MarksPercentage: c.MarksPercentage,
	}
}

func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
