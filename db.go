package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"certcheck/models"
	"certcheck/pkg/store"
)

func openDB(ctx context.Context, cfg config, logger *zap.Logger) (*gorm.DB, error) {
	gdb, err := store.Open(ctx, cfg.DSN, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		migrate(gdb, logger)
	}
	if err := seedDB(ctx, gdb, logger); err != nil {
		return nil, err
	}
	return gdb, nil
}

// migrate runs AutoMigrate per table so one permission problem does not
// block the others. Roles go first so the users FK can be applied.
func migrate(gdb *gorm.DB, logger *zap.Logger) {
	tables := []struct {
		name  string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"certificates", &models.Certificate{}},
		{"logs", &models.VerificationLog{}},
	}
	for _, t := range tables {
		if err := gdb.AutoMigrate(t.model); err != nil {
			logger.Warn("migration warning", zap.String("table", t.name), zap.Error(err))
		}
	}
}

// seedDB ensures roles, the default accounts and, for an empty registry,
// the sample certificates.
func seedDB(ctx context.Context, gdb *gorm.DB, logger *zap.Logger) error {
	gdb = gdb.WithContext(ctx)
	if err := store.EnsureRoles(gdb); err != nil {
		return err
	}
	accounts := []struct{ username, password, role string }{
		{"admin", "admin123", models.RoleAdministrator},
		{"user1", "userpass", models.RoleUser},
	}
	for _, a := range accounts {
		var count int64
		gdb.Model(&models.User{}).Where("username = ?", a.username).Count(&count)
		if count > 0 {
			continue
		}
		if _, err := store.CreateUser(gdb, a.username, a.password, a.role); err != nil {
			return fmt.Errorf("seed user %s: %w", a.username, err)
		}
		logger.Info("seeded user", zap.String("username", a.username), zap.String("role", a.role))
	}
	var certs int64
	if err := gdb.Model(&models.Certificate{}).Count(&certs).Error; err != nil {
		return fmt.Errorf("count certificates: %w", err)
	}
	if certs == 0 {
		samples := store.SampleCertificates()
		reg := store.NewRegistry(gdb)
		for _, c := range samples {
			if err := reg.Add(ctx, &c); err != nil {
				return fmt.Errorf("seed certificate %s: %w", c.CertID, err)
			}
		}
		logger.Info("seeded sample certificates", zap.Int("count", len(samples)))
	}
	return nil
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase(base string, logger *zap.Logger) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		logger.Error("failed to create upload base dir", zap.String("dir", base), zap.Error(err))
	}
}
