package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceTokenRepository persists push-token ownership.
type DeviceTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDeviceTokenRepository creates a new device token repository
func NewDeviceTokenRepository(db *DB, logger *zap.Logger) *DeviceTokenRepository {
	return &DeviceTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the token or, when it already exists, hands it to userID and
// reactivates it. The unique index on token makes this last-write-wins.
func (r *DeviceTokenRepository) Upsert(ctx context.Context, userID, token, platform string) (*DeviceToken, error) {
	query := `
		INSERT INTO device_tokens (id, user_id, token, platform, active, updated_at)
		VALUES ($1, $2, $3, $4, true, NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			active = true,
			updated_at = NOW()
		RETURNING id, user_id, token, platform, active, created_at, updated_at
	`

	var dt DeviceToken
	err := r.db.Pool().QueryRow(ctx, query, uuid.New(), userID, token, platform).Scan(
		&dt.ID,
		&dt.UserID,
		&dt.Token,
		&dt.Platform,
		&dt.Active,
		&dt.CreatedAt,
		&dt.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert device token: %w", err)
	}

	return &dt, nil
}

// DeactivateMany marks every listed token inactive. Unknown or already
// inactive tokens are ignored.
func (r *DeviceTokenRepository) DeactivateMany(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	result, err := r.db.Pool().Exec(ctx,
		`UPDATE device_tokens SET active = false, updated_at = NOW() WHERE token = ANY($1)`,
		tokens,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate device tokens: %w", err)
	}

	return result.RowsAffected(), nil
}

// ActiveTokens returns the active tokens owned by any of userIDs.
func (r *DeviceTokenRepository) ActiveTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT token FROM device_tokens WHERE user_id = ANY($1) AND active = true ORDER BY token`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return tokens, nil
}
