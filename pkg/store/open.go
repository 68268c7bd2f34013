package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"certcheck/models"
)

// GormLogLevel maps a LOG_LEVEL value onto gorm's SQL logger.
func GormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "error":
		return gormlogger.Error
	}
	return gormlogger.Warn
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn, logLevel string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN not set in env")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(GormLogLevel(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return gdb, nil
}

// SampleCertificates populate an empty registry.
func SampleCertificates() []models.Certificate {
	return []models.Certificate{
		{CertID: "JH2021CSE001", StudentName: "Rahul Sharma", RollNumber: "2021CSE45", Course: "B.Tech CSE", Institution: "Ranchi University", YearOfPassing: 2021, MarksPercentage: 82.5},
		{CertID: "JH2020ECE002", StudentName: "Pooja Singh", RollNumber: "2020ECE32", Course: "B.Tech ECE", Institution: "BIT Mesra", YearOfPassing: 2020, MarksPercentage: 78.0},
		{CertID: "JH2019CIV003", StudentName: "Amit Kumar", RollNumber: "2019CIV19", Course: "B.Tech Civil", Institution: "NIT Jamshedpur", YearOfPassing: 2019, MarksPercentage: 74.3},
	}
}
