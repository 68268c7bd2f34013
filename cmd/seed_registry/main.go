package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"certcheck/models"
	"certcheck/pkg/store"
	"certcheck/process/tooling"
)

// loadCertificates reads a JSON array of certificates; an empty path
// returns the built-in samples.
func loadCertificates(path string) ([]models.Certificate, error) {
	if path == "" {
		return store.SampleCertificates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var certs []models.Certificate
	if err := json.Unmarshal(raw, &certs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range certs {
		certs[i].ID = 0
		if strings.TrimSpace(certs[i].CertID) == "" {
			return nil, fmt.Errorf("entry %d has no cert_id", i)
		}
	}
	return certs, nil
}

func main() {
	file := flag.String("file", "", "JSON array of certificates (default: built-in samples)")
	dry := flag.Bool("dry-run", false, "print what would be written")
	flag.Parse()

	certs, err := loadCertificates(*file)
	if err != nil {
		log.Fatal(err)
	}
	if *dry {
		for _, c := range certs {
			fmt.Printf("DRY: %s|%s|%s|%d\n", c.CertID, c.StudentName, c.Institution, c.YearOfPassing)
		}
		return
	}
	gdb := tooling.MustDB(tooling.Logger())
	if err := gdb.AutoMigrate(&models.Certificate{}); err != nil {
		log.Printf("migration warning (certificates): %v", err)
	}
	reg := store.NewRegistry(gdb)
	ctx := context.Background()
	for _, c := range certs {
		if err := reg.Upsert(ctx, &c); err != nil {
			log.Fatalf("upsert %s: %v", c.CertID, err)
		}
	}
	fmt.Printf("upserted %d certificates\n", len(certs))
}
