package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"certcheck/pkg/certid"
	"certcheck/pkg/ocr"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
	"certcheck/process/reverify"
	"certcheck/process/tooling"
)

func main() {
	f := flag.String("file", "", "image file to OCR")
	noDB := flag.Bool("no-db", false, "match against the built-in sample certificates instead of DB_DSN")
	save := flag.String("save", "", "write the preprocessed image to this path")
	retry := flag.Bool("retry", false, "use the enhanced retry preprocessing")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}
	logger := zap.NewNop()
	if os.Getenv("LOG_LEVEL") != "" {
		logger = tooling.Logger()
	}

	img, err := ocr.Open(*f)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	opts := ocr.DefaultPreprocessOptions()
	if *retry {
		opts = reverify.RetryOptions()
		img = reverify.Enhance(img)
	}
	pre := ocr.Preprocess(img, opts)
	if *save != "" {
		if err := imaging.Save(pre, *save); err != nil {
			log.Fatalf("save preprocessed: %v", err)
		}
		fmt.Printf("preprocessed image saved to %s\n", *save)
	}

	ctx := context.Background()
	attempts := ocr.NewExtractor(tooling.Engine(), logger).Attempts(ctx, pre)
	for _, a := range attempts {
		fmt.Printf("pass=%-6s len=%-4d text=%q\n", a.Pass, len([]rune(a.Text)), a.Text)
	}
	best := ocr.Best(attempts)
	fmt.Printf("winner=%s\n", best.Pass)
	fmt.Printf("corrected=%q\n", certid.Correct(best.Text))

	cand, ok := certid.Find(best.Text)
	if !ok {
		fmt.Println("candidate=<none> status=not_detected")
		return
	}
	fmt.Printf("candidate=%s strategy=%s normalized=%s\n", cand.ID, cand.Strategy, certid.Normalize(cand.ID))

	var records []verify.Record
	var reg verify.Registry
	if *noDB {
		for _, c := range store.SampleCertificates() {
			records = append(records, store.ToRecord(c))
		}
		reg = verify.StaticRegistry(records)
	} else {
		reg = store.NewRegistry(tooling.MustDB(logger))
	}
	if records, err = reg.Snapshot(ctx); err != nil {
		log.Fatalf("registry: %v", err)
	}
	for _, r := range records {
		fmt.Printf("  %-20s %.4f\n", r.Identifier, verify.Similarity(certid.Normalize(cand.ID), certid.Normalize(r.Identifier)))
	}
	res := verify.Decide(cand.ID, records, tooling.Threshold())
	matched := "-"
	if res.Record != nil {
		matched = strings.TrimSpace(res.Record.Identifier + " " + res.Record.StudentName)
	}
	fmt.Printf("status=%s similarity=%.4f matched=%s\n", res.Status, res.Similarity, matched)
}
