package reverify

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"certcheck/models"
	"certcheck/pkg/ocr"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

type memStore struct {
	filter   store.Filter
	rows     []models.VerificationLog
	appended []models.VerificationLog
}

func (m *memStore) Between(_ context.Context, f store.Filter) ([]models.VerificationLog, error) {
	m.filter = f
	return m.rows, nil
}

func (m *memStore) Append(_ context.Context, e *models.VerificationLog) error {
	m.appended = append(m.appended, *e)
	return nil
}

func setup(t *testing.T) (string, *memStore) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		if err := imaging.Save(imaging.New(10, 10, color.NRGBA{255, 255, 255, 255}), filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	return dir, &memStore{rows: []models.VerificationLog{
		{ID: 7, UploadedFilename: "a.png", Result: "not_detected", Verifier: "user1"},
		{ID: 8, UploadedFilename: "b.png", Result: "not_detected", Verifier: VerifierName},
		{ID: 9, UploadedFilename: "missing.png", Result: "not_detected", Verifier: "user1"},
	}}
}

func verifierWith(text string, opts *ocr.PreprocessOptions) *verify.Verifier {
	engine := ocr.EngineFunc(func(context.Context, image.Image, ocr.Pass) (string, error) { return text, nil })
	o := []verify.Option{}
	if opts != nil {
		o = append(o, verify.WithPreprocessOptions(*opts))
	}
	return verify.New(ocr.NewExtractor(engine, nil), verify.StaticRegistry{{Identifier: "JH2019CIV003"}}, o...)
}

func TestRunAppendsRecoveredRows(t *testing.T) {
	dir, st := setup(t)
	retry := RetryOptions()
	var out bytes.Buffer
	n, err := Run(context.Background(), &out, verifierWith("CERT JH2O19CIV003", &retry), st, Options{UploadDir: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(st.appended) != 1 {
		t.Fatalf("recovered=%d appended=%d", n, len(st.appended))
	}
	e := st.appended[0]
	if e.Verifier != VerifierName || e.RequestID != "reverify-7" || e.UploadedFilename != "a.png" {
		t.Fatalf("row %+v", e)
	}
	if st.filter.Result != verify.StatusNotDetected {
		t.Fatalf("filter %+v", st.filter)
	}
	if !strings.Contains(out.String(), "log id=7") {
		t.Fatalf("output %q", out.String())
	}
}

func TestRunDryRun(t *testing.T) {
	dir, st := setup(t)
	var out bytes.Buffer
	n, err := Run(context.Background(), &out, verifierWith("JH2019CIV003", nil), st, Options{UploadDir: dir, DryRun: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(st.appended) != 0 || !strings.HasPrefix(out.String(), "DRY:") {
		t.Fatalf("n=%d appended=%d out=%q", n, len(st.appended), out.String())
	}
}

func TestRunStillNotDetected(t *testing.T) {
	dir, st := setup(t)
	n, err := Run(context.Background(), &bytes.Buffer{}, verifierWith("", nil), st, Options{UploadDir: dir}, nil)
	if err != nil || n != 0 || len(st.appended) != 0 {
		t.Fatalf("n=%d err=%v appended=%d", n, err, len(st.appended))
	}
}

func TestRetryOptions(t *testing.T) {
	o := RetryOptions()
	if o.Method != ocr.ThresholdMean || o.OpenSize != 2 || o.BlockSize != ocr.DefaultPreprocessOptions().BlockSize {
		t.Fatalf("options %+v", o)
	}
}

func TestEnhanceKeepsBounds(t *testing.T) {
	img := imaging.New(9, 5, color.NRGBA{128, 128, 128, 255})
	if b := Enhance(img).Bounds(); b.Dx() != 9 || b.Dy() != 5 {
		t.Fatalf("bounds %v", b)
	}
}
