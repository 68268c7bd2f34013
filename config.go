package main

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"certcheck/pkg/verify"
)

type config struct {
	DSN            string
	AutoMigrate    bool
	JWTSecret      []byte
	ListenAddr     string
	UploadBase     string
	MaxUploadBytes int64
	MatchThreshold float64
	OCRLanguages   []string
	OCRWhitelist   string
	LogLevel       string
}

// loadConfig reads the environment after merging ./.env into it.
func loadConfig() (config, error) {
	loadDotEnv()
	cfg := config{
		DSN:            os.Getenv("DB_DSN"),
		AutoMigrate:    envBool("DB_AUTO_MIGRATE", true),
		JWTSecret:      []byte(getEnv("JWT_SECRET", "dev-insecure-secret-change")),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8081"),
		UploadBase:     getEnv("UPLOAD_BASE", "uploads"),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 5<<20),
		MatchThreshold: envFloat("MATCH_THRESHOLD", verify.DefaultThreshold),
		OCRLanguages:   splitList(getEnv("OCR_LANG", "eng")),
		OCRWhitelist:   os.Getenv("OCR_WHITELIST"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
	if cfg.DSN == "" {
		return cfg, errors.New("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN")
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold >= 1 {
		return cfg, errors.New("MATCH_THRESHOLD must be in [0,1)")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "false", "0", "no":
		return false
	}
	return true
}

func envInt64(key string, fallback int64) int64 {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && n > 0 {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	f, err := os.Open(filepath.Clean(".env"))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.Trim(strings.TrimSpace(line[eq+1:]), `"`)
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
