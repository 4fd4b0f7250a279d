// Package device owns push-token registration and its soft-delete lifecycle.
package device

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
)

// ErrEmptyToken is returned when a registration carries no token.
var ErrEmptyToken = errors.New("device token is required")

// Repository is the token storage the Registry writes through.
type Repository interface {
	Upsert(ctx context.Context, userID, token, platform string) (*db.DeviceToken, error)
	DeactivateMany(ctx context.Context, tokens []string) (int64, error)
	ActiveTokens(ctx context.Context, userIDs []string) ([]string, error)
}

// Registry maps push tokens to the user currently holding the device.
// A token has at most one owner; registering it again hands it over.
type Registry struct {
	repo   Repository
	logger *zap.Logger
}

// NewRegistry creates a Registry over repo.
func NewRegistry(repo Repository, logger *zap.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// NormalizePlatform maps anything outside android/ios/web to android.
func NormalizePlatform(platform string) string {
	switch p := strings.ToLower(strings.TrimSpace(platform)); p {
	case db.PlatformAndroid, db.PlatformIOS, db.PlatformWeb:
		return p
	default:
		return db.PlatformAndroid
	}
}

// Upsert registers token for userID, reassigning and reactivating it when it
// already exists.
func (r *Registry) Upsert(ctx context.Context, userID, token, platform string) (*db.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	dt, err := r.repo.Upsert(ctx, userID, token, NormalizePlatform(platform))
	if err != nil {
		return nil, err
	}

	r.logger.Info("device token registered",
		zap.String("user_id", userID),
		zap.String("platform", dt.Platform),
	)
	return dt, nil
}

// Deactivate soft-deletes one token. Unknown or inactive tokens are fine.
func (r *Registry) Deactivate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	return r.DeactivateMany(ctx, []string{token})
}

// DeactivateMany soft-deletes every listed token in one statement.
func (r *Registry) DeactivateMany(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	n, err := r.repo.DeactivateMany(ctx, tokens)
	if err != nil {
		return err
	}

	r.logger.Info("device tokens deactivated",
		zap.Int("requested", len(tokens)),
		zap.Int64("changed", n),
	)
	return nil
}

// ActiveTokensFor returns the active tokens owned by any of userIDs.
func (r *Registry) ActiveTokensFor(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}

	tokens, err := r.repo.ActiveTokens(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []string{}
	}
	return tokens, nil
}
