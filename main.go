package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"certcheck/pkg/logging"
	"certcheck/pkg/ocr"
	"certcheck/pkg/ocr/tesseract"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	gdb, err := openDB(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("database setup failed", zap.Error(err))
	}
	// `certcheck migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		logger.Info("migration and seeding completed")
		return
	}
	ensureUploadBase(cfg.UploadBase, logger)

	registry := store.NewRegistry(gdb)
	engine := tesseract.New(cfg.OCRWhitelist, cfg.OCRLanguages...)
	srv := &server{
		db:       gdb,
		cfg:      cfg,
		verifier: verify.New(ocr.NewExtractor(engine, logger), registry, verify.WithThreshold(cfg.MatchThreshold), verify.WithLogger(logger)),
		registry: registry,
		audit:    store.NewAuditLog(gdb),
		logger:   logger,
	}

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	srv.setupRoutes(r)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("certificate verifier listening", zap.String("addr", cfg.ListenAddr), zap.Float64("threshold", cfg.MatchThreshold))
	if err := serveHTTPServer(httpServer, 15*time.Second, logger, nil); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// serveHTTPServer runs server until it fails or a shutdown signal arrives,
// then drains in-flight requests for at most shutdownTimeout. A nil signalCh
// listens for SIGINT and SIGTERM.
func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-signalCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
