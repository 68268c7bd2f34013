package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"certcheck/pkg/store"
	"certcheck/pkg/verify"
	"certcheck/process/report"
	"certcheck/process/reverify"
	"certcheck/process/tooling"
)

func main() {
	dir := flag.String("dir", "uploads", "directory holding stored uploads")
	dry := flag.Bool("dry-run", true, "dry-run: don't write audit rows")
	month := flag.String("month", "", "only retry rows from this month (YYYY-MM)")
	verifier := flag.String("verifier", "", "only retry rows recorded by this verifier")
	flag.Parse()

	if os.Getenv("DB_DSN") == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export and retry")
		os.Exit(2)
	}
	logger := tooling.Logger()
	defer logger.Sync() //nolint:errcheck

	f := store.Filter{Verifier: *verifier}
	if *month != "" {
		start, end, err := report.MonthRange(*month)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		f.From, f.To = start, end
	}

	gdb := tooling.MustDB(logger)
	v := tooling.NewVerifier(store.NewRegistry(gdb), logger, verify.WithPreprocessOptions(reverify.RetryOptions()))
	n, err := reverify.Run(context.Background(), os.Stdout, v, store.NewAuditLog(gdb), reverify.Options{UploadDir: *dir, DryRun: *dry, Filter: f}, logger)
	if err != nil {
		logger.Fatal("reverify failed", zap.Error(err))
	}
	fmt.Printf("recovered=%d\n", n)
}
