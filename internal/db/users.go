package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// UserRepository reads location and role data from users_metadata, which is
// owned by the profile service. Nothing here writes.
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new read-only user repository
func NewUserRepository(db *DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// ListLocated returns every user that has coordinates or a district.
//
// This is a full scan. It is fine at city scale; a geohash bucket column would
// let it narrow by prefix without changing callers.
func (r *UserRepository) ListLocated(ctx context.Context) ([]UserLocation, error) {
	query := `
		SELECT auth_id, lat, lng, district
		FROM users_metadata
		WHERE (lat IS NOT NULL AND lng IS NOT NULL) OR (district IS NOT NULL AND district <> '')
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query located users: %w", err)
	}
	defer rows.Close()

	var users []UserLocation
	for rows.Next() {
		var u UserLocation
		if err := rows.Scan(&u.UserID, &u.Lat, &u.Lng, &u.District); err != nil {
			return nil, fmt.Errorf("scan user location: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return users, nil
}

// ListIDsByRole returns the ids of every user holding role.
func (r *UserRepository) ListIDsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT auth_id FROM users_metadata WHERE role = $1`, role)
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return ids, nil
}
