package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"certcheck/pkg/store"
	"certcheck/process/inbox"
	"certcheck/process/tooling"
)

// Scans a directory of certificate images, verifies each against the
// registry, records audit rows and archives the files; optional watch mode.
func main() {
	dir := flag.String("dir", "inbox", "directory to scan for certificate images")
	processed := flag.String("processed", "", "archive directory (default <dir>/processed)")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	watch := flag.Bool("watch", false, "keep watching the directory for new files")
	dryRun := flag.Bool("dry-run", false, "verify only; no audit rows, no moves")
	maxBytes := flag.Int64("max-archive-bytes", 1_000_000, "downsize archived images above this size (0 disables)")
	flag.Parse()

	logger := tooling.Logger()
	defer logger.Sync() //nolint:errcheck

	gdb := tooling.MustDB(logger)
	p := inbox.New(
		tooling.NewVerifier(store.NewRegistry(gdb), logger),
		store.NewAuditLog(gdb),
		inbox.Options{Dir: *dir, ProcessedDir: *processed, Workers: *workers, DryRun: *dryRun, MaxProcessedBytes: *maxBytes},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counts := map[string]int{}
	for _, o := range p.Scan(ctx) {
		if o.Err != nil {
			counts["error"]++
			fmt.Printf("%s|error|%v\n", o.File, o.Err)
			continue
		}
		counts[string(o.Result.Status)]++
		fmt.Printf("%s|%s|%s|%.4f\n", o.File, o.Result.Status, o.Result.CandidateID, o.Result.Similarity)
	}
	logger.Info("scan finished", zap.Any("counts", counts))

	if *watch {
		if err := p.Watch(ctx); err != nil {
			logger.Fatal("watch failed", zap.Error(err))
		}
	}
}
