package store

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"certcheck/models"
)

// ErrUserExists is returned when the username is taken.
var ErrUserExists = errors.New("user already exists")

// EnsureRoles creates the default roles that are missing.
func EnsureRoles(gdb *gorm.DB) error {
	for _, r := range models.DefaultRoles() {
		if err := gdb.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("ensure role %s: %w", r.Name, err)
		}
	}
	return nil
}

// CreateUser hashes password and stores the account under role.
func CreateUser(gdb *gorm.DB, username, password, role string) (*models.User, error) {
	var r models.Role
	if err := gdb.Where("name = ?", role).First(&r).Error; err != nil {
		return nil, fmt.Errorf("find role %s: %w", role, err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	rid := r.ID
	user := &models.User{Username: username, HashedPassword: hashed, RoleID: &rid}
	if err := gdb.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// SetPassword replaces the password hash of username.
func SetPassword(gdb *gorm.DB, username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := gdb.Model(&models.User{}).Where("username = ?", username).Update("hashed_password", hashed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s not found", username)
	}
	return nil
}
