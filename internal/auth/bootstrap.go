package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/utils"
)

// AdminCreator is the repository call used by EnsureAdmin.
type AdminCreator interface {
	CreateIfAbsent(ctx context.Context, email, passwordHash, name string, role models.Role) (bool, error)
}

// EnsureAdmin creates the first ADMIN account from configuration. It is a no-op
// when email or password is empty or the account already exists.
func EnsureAdmin(ctx context.Context, repo AdminCreator, email, password, name string, logger *zap.Logger) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	created, err := repo.CreateIfAbsent(ctx, email, hash, name, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	if created {
		logger.Info("admin account created", zap.String("email", email))
	}
	return nil
}
