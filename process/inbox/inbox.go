// Package inbox verifies certificate images dropped into a directory and
// records every outcome in the audit log.
package inbox

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"certcheck/models"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

// VerifierName is recorded as the verifier of every inbox audit row.
const VerifierName = "inbox"

// Appender stores audit rows.
type Appender interface {
	Append(ctx context.Context, entry *models.VerificationLog) error
}

// Options configures a Processor.
type Options struct {
	Dir          string
	ProcessedDir string
	Workers      int
	// MaxProcessedBytes downsizes archived images above this size. Zero keeps them as is.
	MaxProcessedBytes int64
	// DryRun verifies and logs but neither appends audit rows nor moves files.
	DryRun bool
	// Debounce is how long a file must stay quiet in watch mode before it is picked up.
	Debounce time.Duration
}

type Processor struct {
	verifier *verify.Verifier
	audit    Appender
	opts     Options
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]bool
}

func New(v *verify.Verifier, audit Appender, opts Options, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(opts.Dir, "processed")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	return &Processor{verifier: v, audit: audit, opts: opts, logger: logger.Named("inbox"), seen: map[string]bool{}}
}

// Outcome is the result of one inbox file.
type Outcome struct {
	File   string
	Result *verify.Result
	Err    error
}

// Scan verifies every supported image currently in the directory.
func (p *Processor) Scan(ctx context.Context) []Outcome {
	files := ListImageFiles(p.opts.Dir)
	p.logger.Info("scanning inbox", zap.String("dir", p.opts.Dir), zap.Int("files", len(files)), zap.Int("workers", p.opts.Workers))
	ch := make(chan string, len(files))
	for _, f := range files {
		ch <- f
	}
	close(ch)
	return p.runWorkerPool(ctx, ch)
}

// Watch processes files created in the directory until ctx is done.
func (p *Processor) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(p.opts.Dir); err != nil {
		return err
	}
	p.logger.Info("watching inbox", zap.String("dir", p.opts.Dir))

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		pending := map[string]time.Time{}
		ticker := time.NewTicker(p.opts.Debounce / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					name := filepath.Base(ev.Name)
					if IsSupportedExt(name) {
						pending[name] = time.Now()
					}
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > p.opts.Debounce {
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
	p.runWorkerPool(ctx, fileCh)
	return nil
}

func (p *Processor) runWorkerPool(ctx context.Context, files <-chan string) []Outcome {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []Outcome
	)
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				o, ok := p.processFile(ctx, name)
				if !ok {
					continue
				}
				mu.Lock()
				out = append(out, o)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// claim marks name as in progress; false means another worker owns it.
func (p *Processor) claim(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[name] {
		return false
	}
	p.seen[name] = true
	return true
}

func (p *Processor) processFile(ctx context.Context, name string) (Outcome, bool) {
	if !p.claim(name) {
		return Outcome{}, false
	}
	full := filepath.Join(p.opts.Dir, name)
	o := Outcome{File: name}
	f, err := os.Open(full)
	if err != nil {
		o.Err = err
		p.logger.Warn("open failed", zap.String("file", name), zap.Error(err))
		return o, true
	}
	o.Result, o.Err = p.verifier.Verify(ctx, verify.Request{Image: f})
	f.Close()
	if o.Err != nil {
		p.logger.Warn("verification failed", zap.String("file", name), zap.Error(o.Err))
		return o, true
	}
	p.logger.Info("verified", zap.String("file", name), zap.String("status", string(o.Result.Status)), zap.String("candidate", o.Result.CandidateID))
	if p.opts.DryRun {
		return o, true
	}
	entry := store.NewLogEntry(o.Result, store.Meta{Filename: name, Verifier: VerifierName})
	entry.RequestID = requestID(name, entry.Timestamp)
	if err := p.audit.Append(ctx, &entry); err != nil {
		o.Err = err
		p.logger.Error("audit append failed", zap.String("file", name), zap.Error(err))
		return o, true
	}
	if err := MoveToProcessed(full, p.opts.ProcessedDir, p.opts.MaxProcessedBytes); err != nil {
		p.logger.Warn("failed to move processed file", zap.String("file", name), zap.Error(err))
	}
	return o, true
}

func requestID(name string, at time.Time) string {
	id := VerifierName + "-" + at.UTC().Format("20060102T150405.000000000") + "-" + name
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}

// ListImageFiles returns the supported image names in dir, sorted.
func ListImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// IsSupportedExt reports whether name looks like a decodable image. Files
// produced by the debug tools (*.pre.*) are skipped.
func IsSupportedExt(name string) bool {
	if strings.Contains(name, ".pre.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// MoveToProcessed moves src into dir. Images larger than maxBytes are
// re-encoded at a smaller size; anything that cannot be decoded is moved raw.
func MoveToProcessed(src, dir string, maxBytes int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if maxBytes <= 0 || fi.Size() <= maxBytes {
		return moveRaw(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return moveRaw(src, dst)
	}
	// encoded size roughly follows area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	if scale < 0.1 {
		scale = 0.1
	}
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	if err := imaging.Save(imaging.Resize(img, w, 0, imaging.Lanczos), dst); err != nil {
		return moveRaw(src, dst)
	}
	return os.Remove(src)
}

// moveRaw attempts an atomic rename and falls back to copy+remove.
func moveRaw(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
