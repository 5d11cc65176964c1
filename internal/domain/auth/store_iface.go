package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email, status string) (AuthUser, error)
	EmployeeIDForUser(ctx context.Context, tenantID, userID string) (string, error)
	UpdateLastLogin(ctx context.Context, userID string) error

	CreateSession(ctx context.Context, userID, refreshTokenHash string, expires time.Time) error
	RevokeSession(ctx context.Context, userID, refreshTokenHash string) error
	SessionValid(ctx context.Context, userID, refreshTokenHash string) (bool, error)
	RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error

	UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error
	GetMFASecret(ctx context.Context, userID string) ([]byte, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error

	UserIDByEmail(ctx context.Context, email string) (string, error)
	CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error
	PasswordResetUserID(ctx context.Context, tokenHash string) (string, error)
	UpdateUserPassword(ctx context.Context, userID, hash string) error
	MarkPasswordResetUsed(ctx context.Context, tokenHash string) error
}
