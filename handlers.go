package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"certcheck/models"
	"certcheck/pkg/logging"
	"certcheck/pkg/ocr"
	"certcheck/pkg/store"
	"certcheck/pkg/verify"
)

type auditLog interface {
	Append(ctx context.Context, entry *models.VerificationLog) error
	List(ctx context.Context, limit int) ([]models.VerificationLog, error)
	Summary(ctx context.Context, f store.Filter) (map[string]int64, error)
}

type registryAdmin interface {
	List(ctx context.Context, limit int) ([]models.Certificate, error)
	Add(ctx context.Context, c *models.Certificate) error
}

type server struct {
	db       *gorm.DB
	cfg      config
	verifier *verify.Verifier
	registry registryAdmin
	audit    auditLog
	logger   *zap.Logger
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)

	authGroup := r.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", s.meHandler)
	authGroup.POST("/verify", s.verifyHandler)
	authGroup.GET("/uploads/:name", s.serveUploadHandler)

	admin := authGroup.Group("")
	admin.Use(requireRole(models.RoleAdministrator))
	admin.GET("/logs", s.listLogsHandler)
	admin.GET("/logs/summary", s.logSummaryHandler)
	admin.GET("/certificates", s.listCertificatesHandler)
	admin.POST("/certificates", s.addCertificateHandler)
}

func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := parseAccessToken(s.cfg.JWTSecret, authHeader[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func (s *server) meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": c.GetString("username"), "role": c.GetString("role")})
}

func (s *server) registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(s.db, req.Username, req.Password); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUserExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func (s *server) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(s.db, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := signAccessToken(s.cfg.JWTSecret, user.Username, user.Role.Name, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(s.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken, "role": user.Role.Name})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (s *server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(s.db, req.RefreshToken)
	if err != nil || !rt.Usable(time.Now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := s.db.Preload("Role").First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokenString, err := signAccessToken(s.cfg.JWTSecret, user.Username, user.Role.Name, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	s.db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(s.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func (s *server) revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(s.db, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := s.db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps a flat, printable base name safe to join under the
// upload directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeFilenameChars.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload"
	}
	return name
}

// storedFilename prefixes the sanitized name with the request id so two
// uploads of the same file never collide.
func storedFilename(requestID, original string) string {
	prefix := strings.ReplaceAll(requestID, "-", "")
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return prefix + "_" + sanitizeFilename(original)
}

type verifyResponse struct {
	*verify.Result
	RequestID        string `json:"request_id"`
	UploadedFilename string `json:"uploaded_filename"`
}

// verifyHandler stores the uploaded certificate, runs the verifier and
// records the outcome in the audit log.
func (s *server) verifyHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large (max " + strconv.FormatInt(s.cfg.MaxUploadBytes>>20, 10) + "MB)"})
		return
	}
	requestID := uuid.NewString()
	logger := logging.WithOperation(s.logger, "verify", requestID)
	stored := storedFilename(requestID, file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(s.cfg.UploadBase, stored)); err != nil {
		logger.Error("save upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	res, err := s.verifier.Verify(ctx, verify.Request{Image: f, ManualID: c.PostForm("manual_cert_id")})
	if err != nil {
		if errors.Is(err, ocr.ErrImageLoad) {
			logger.Info("rejected undecodable upload", zap.String("file", stored), zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image could not be decoded"})
			return
		}
		logger.Error("verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	entry := store.NewLogEntry(res, store.Meta{
		RequestID: requestID,
		Filename:  stored,
		Verifier:  c.GetString("username"),
		At:        time.Now().UTC(),
	})
	if err := s.audit.Append(ctx, &entry); err != nil {
		logger.Error("audit append failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record verification"})
		return
	}
	c.JSON(http.StatusOK, verifyResponse{Result: res, RequestID: requestID, UploadedFilename: stored})
}

func (s *server) serveUploadHandler(c *gin.Context) {
	name := c.Param("name")
	if name != sanitizeFilename(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	c.File(filepath.Join(s.cfg.UploadBase, name))
}

func queryLimit(c *gin.Context, fallback int) int {
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		return n
	}
	return fallback
}

// listLogsHandler is the audit dashboard, newest rows first.
func (s *server) listLogsHandler(c *gin.Context) {
	rows, err := s.audit.List(c.Request.Context(), queryLimit(c, 200))
	if err != nil {
		s.logger.Error("list logs failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// logSummaryHandler counts verdicts, optionally for one month (YYYY-MM) and verifier.
func (s *server) logSummaryHandler(c *gin.Context) {
	f := store.Filter{Verifier: c.Query("verifier")}
	if month := c.Query("month"); month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month format, expected YYYY-MM"})
			return
		}
		f.From = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		f.To = f.From.AddDate(0, 1, 0)
	}
	counts, err := s.audit.Summary(c.Request.Context(), f)
	if err != nil {
		s.logger.Error("log summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (s *server) listCertificatesHandler(c *gin.Context) {
	certs, err := s.registry.List(c.Request.Context(), queryLimit(c, 0))
	if err != nil {
		s.logger.Error("list certificates failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, certs)
}

func (s *server) addCertificateHandler(c *gin.Context) {
	var req models.Certificate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.CertID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cert_id required"})
		return
	}
	req.ID = 0
	if err := s.registry.Add(c.Request.Context(), &req); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("add certificate failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID, "cert_id": req.CertID})
}
