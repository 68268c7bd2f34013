package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"certcheck/pkg/store"
	"certcheck/process/report"
	"certcheck/process/tooling"
)

func main() {
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	verifier := flag.String("verifier", "", "only count rows recorded by this verifier")
	list := flag.Bool("list", false, "list matching rows")
	flag.Parse()

	if os.Getenv("DB_DSN") == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}
	logger := tooling.Logger()
	gdb := tooling.MustDB(logger)
	if err := report.Run(context.Background(), os.Stdout, store.NewAuditLog(gdb), *month, *verifier, *list); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}
