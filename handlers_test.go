package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"certcheck/models"
	"certcheck/pkg/ocr"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

var testSecret = []byte("test-secret")

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.VerificationLog
	err     error
}

func (f *fakeAudit) Append(_ context.Context, e *models.VerificationLog) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAudit) List(context.Context, int) ([]models.VerificationLog, error) {
	return f.entries, f.err
}

func (f *fakeAudit) Summary(context.Context, store.Filter) (map[string]int64, error) {
	out := map[string]int64{"valid": 0, "fake": 0, "not_detected": 0}
	for _, e := range f.entries {
		out[e.Result]++
	}
	return out, f.err
}

type fakeRegistry struct {
	certs []models.Certificate
}

func (f *fakeRegistry) List(context.Context, int) ([]models.Certificate, error) {
	return f.certs, nil
}

func (f *fakeRegistry) Add(_ context.Context, c *models.Certificate) error {
	for _, e := range f.certs {
		if e.CertID == c.CertID {
			return store.ErrDuplicate
		}
	}
	c.ID = uint(len(f.certs) + 1)
	f.certs = append(f.certs, *c)
	return nil
}

type testEnv struct {
	router *gin.Engine
	audit  *fakeAudit
	dir    string
}

func newTestEnv(t *testing.T, text string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	engine := ocr.EngineFunc(func(ctx context.Context, img image.Image, pass ocr.Pass) (string, error) {
		return text, nil
	})
	records := verify.StaticRegistry{
		{Identifier: "JH2020ECE002", StudentName: "Pooja Singh"},
		{Identifier: "JH2019CIV003", StudentName: "Amit Kumar"},
	}
	env := &testEnv{audit: &fakeAudit{}, dir: dir}
	srv := &server{
		cfg:      config{JWTSecret: testSecret, UploadBase: dir, MaxUploadBytes: 1 << 20},
		verifier: verify.New(ocr.NewExtractor(engine, nil), records),
		registry: &fakeRegistry{},
		audit:    env.audit,
		logger:   zap.NewNop(),
	}
	env.router = gin.New()
	srv.setupRoutes(env.router)
	return env
}

func token(t *testing.T, username, role string) string {
	t.Helper()
	s, err := signAccessToken(testSecret, username, role, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(8, 8, color.Gray{Y: 0})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if filename != "" {
		w, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write(content)
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func doVerify(t *testing.T, env *testEnv, tok, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, content, fields)
	return performRequest(env.router, http.MethodPost, "/verify", body, tok, ct)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	rec := performRequest(env.router, http.MethodGet, "/health", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestVerifyRequiresToken(t *testing.T) {
	env := newTestEnv(t, "")
	rec := doVerify(t, env, "", "c.png", blankPNG(t), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
	rec = doVerify(t, env, "not-a-jwt", "c.png", blankPNG(t), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 for garbage token, got %d", rec.Code)
	}
}

func TestVerifyValidCertificate(t *testing.T) {
	env := newTestEnv(t, "CERTIFICATE No JH2020ECE002")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "my cert.png", blankPNG(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "valid" || body["source"] != "ocr" || body["candidate_id"] != "JH2020ECE002" {
		t.Fatalf("unexpected body %v", body)
	}
	rec1, _ := body["matched_record"].(map[string]any)
	if rec1["student_name"] != "Pooja Singh" {
		t.Fatalf("matched record %v", body["matched_record"])
	}
	stored, _ := body["uploaded_filename"].(string)
	if !strings.HasSuffix(stored, "_my_cert.png") {
		t.Fatalf("stored name %q", stored)
	}
	if _, err := os.Stat(filepath.Join(env.dir, stored)); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}
	if len(env.audit.entries) != 1 {
		t.Fatalf("audit rows %d", len(env.audit.entries))
	}
	e := env.audit.entries[0]
	if e.Verifier != "user1" || e.Result != "valid" || e.DetectedCertID != "JH2020ECE002" || e.RequestID != body["request_id"] {
		t.Fatalf("audit row %+v", e)
	}
}

func TestVerifyManualOverrideSkipsDecoding(t *testing.T) {
	env := newTestEnv(t, "")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "scan.jpg", []byte("not an image"), map[string]string{"manual_cert_id": "  jh2019civ003 "})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "valid" || body["source"] != "manual" || body["candidate_id"] != "JH2019CIV003" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVerifyNotDetectedIsLogged(t *testing.T) {
	env := newTestEnv(t, "")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "c.png", blankPNG(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "not_detected" {
		t.Fatalf("unexpected body %v", body)
	}
	if e := env.audit.entries[0]; e.CertID != models.NotAvailable || e.DetectedCertID != models.NotAvailable {
		t.Fatalf("audit row %+v", e)
	}
}

func TestVerifyRejectsUndecodableImage(t *testing.T) {
	env := newTestEnv(t, "JH2020ECE002")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "c.png", []byte("garbage"), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rec.Code)
	}
	if len(env.audit.entries) != 0 {
		t.Fatal("failed verification must not be audited")
	}
}

func TestVerifyMissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "", nil, map[string]string{"manual_cert_id": "JH2019CIV003"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestVerifyTooLarge(t *testing.T) {
	env := newTestEnv(t, "")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "big.png", bytes.Repeat([]byte{1}, 2<<20), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
}

func TestVerifyAuditFailure(t *testing.T) {
	env := newTestEnv(t, "JH2020ECE002")
	env.audit.err = errors.New("db down")
	rec := doVerify(t, env, token(t, "user1", models.RoleUser), "c.png", blankPNG(t), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdministrator(t *testing.T) {
	env := newTestEnv(t, "")
	for _, path := range []string{"/logs", "/logs/summary", "/certificates"} {
		rec := performRequest(env.router, http.MethodGet, path, nil, token(t, "user1", models.RoleUser), "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: want 403, got %d", path, rec.Code)
		}
		rec = performRequest(env.router, http.MethodGet, path, nil, token(t, "admin", models.RoleAdministrator), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: want 200 for admin, got %d", path, rec.Code)
		}
	}
}

func TestLogSummaryRejectsBadMonth(t *testing.T) {
	env := newTestEnv(t, "")
	rec := performRequest(env.router, http.MethodGet, "/logs/summary?month=May", nil, token(t, "admin", models.RoleAdministrator), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestAddCertificate(t *testing.T) {
	env := newTestEnv(t, "")
	admin := token(t, "admin", models.RoleAdministrator)
	payload := `{"cert_id":"JH2022MEC004","student_name":"Neha Verma","year_of_passing":2022}`
	rec := performRequest(env.router, http.MethodPost, "/certificates", strings.NewReader(payload), admin, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	rec = performRequest(env.router, http.MethodPost, "/certificates", strings.NewReader(payload), admin, "application/json")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: want 409, got %d", rec.Code)
	}
	rec = performRequest(env.router, http.MethodPost, "/certificates", strings.NewReader(`{"cert_id":"  "}`), admin, "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank id: want 400, got %d", rec.Code)
	}
}

func TestServeUploadRejectsTraversal(t *testing.T) {
	env := newTestEnv(t, "")
	if err := os.WriteFile(filepath.Join(env.dir, "abc_cert.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tok := token(t, "user1", models.RoleUser)
	if rec := performRequest(env.router, http.MethodGet, "/uploads/abc_cert.png", nil, tok, ""); rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec := performRequest(env.router, http.MethodGet, "/uploads/..%2Fsecret", nil, tok, ""); rec.Code == http.StatusOK {
		t.Fatal("traversal served")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"cert.png":             "cert.png",
		"my cert.png":          "my_cert.png",
		"../../etc/passwd":     "passwd",
		`C:\Users\x\scan.jpeg`: "scan.jpeg",
		".hidden":              "hidden",
		"sertifikat (1).png":   "sertifikat_1.png",
		"":                     "upload",
		"???":                  "upload",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if got := storedFilename("0123456789ab-cdef", "a b.png"); got != "0123456789ab_a_b.png" {
		t.Errorf("storedFilename = %q", got)
	}
}

func TestServeHTTPServerStopsOnSignal(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM
	done := make(chan error, 1)
	go func() { done <- serveHTTPServer(srv, time.Second, zap.NewNop(), sig) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
