package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"certcheck/models"
	"certcheck/pkg/store"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errUserExists         = errors.New("user already exists")
)

const (
	accessTTL  = 24 * time.Hour
	refreshTTL = 30 * 24 * time.Hour
)

// RegisterUser creates a regular account.
func RegisterUser(gdb *gorm.DB, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password too short (min 6)")
	}
	var existing models.User
	if err := gdb.Where("username = ?", username).First(&existing).Error; err == nil {
		return errUserExists
	}
	if err := store.EnsureRoles(gdb); err != nil {
		return err
	}
	if _, err := store.CreateUser(gdb, username, password, models.RoleUser); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return errUserExists
		}
		return err
	}
	return nil
}

// Authenticate returns the user with its role loaded.
func Authenticate(gdb *gorm.DB, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	var user models.User
	if err := gdb.Preload("Role").Where("username = ?", username).First(&user).Error; err != nil {
		return models.User{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, errInvalidCredentials
	}
	return user, nil
}

type accessClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func signAccessToken(secret []byte, username, role string, now time.Time) (string, error) {
	claims := accessClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseAccessToken(secret []byte, tokenString string) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

func hashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(gdb *gorm.DB, userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashRefreshToken(token), ExpiresAt: time.Now().Add(refreshTTL)}
	if err := gdb.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(gdb *gorm.DB, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := gdb.Where("token_hash = ?", hashRefreshToken(token)).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}
