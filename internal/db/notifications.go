package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// NotificationRepository handles database operations for notification rows
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

var notificationColumns = []string{
	"id", "user_id", "type", "title", "message", "ref_type", "ref_id", "is_read", "created_at",
}

// Insert stores a single notification row.
func (r *NotificationRepository) Insert(ctx context.Context, notif *Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, type, title, message, ref_type, ref_id, is_read
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		notif.ID,
		notif.UserID,
		notif.Type,
		notif.Title,
		notif.Message,
		notif.RefType,
		notif.RefID,
		notif.IsRead,
	).Scan(&notif.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// InsertMany stores all rows in a single COPY round trip.
func (r *NotificationRepository) InsertMany(ctx context.Context, notifs []*Notification) error {
	if len(notifs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(notifs))
	for i, n := range notifs {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		rows[i] = []any{n.ID, n.UserID, n.Type, n.Title, n.Message, n.RefType, n.RefID, n.IsRead, n.CreatedAt}
	}

	copied, err := r.db.Pool().CopyFrom(ctx, pgx.Identifier{"notifications"}, notificationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy notifications: %w", err)
	}

	if int(copied) != len(notifs) {
		return fmt.Errorf("copy notifications: wrote %d of %d rows", copied, len(notifs))
	}

	return nil
}

// ListByUser returns the newest notifications for a user.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	query := `
		SELECT
			id, user_id, type, title, message, ref_type, ref_id, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*Notification, 0, limit)
	for rows.Next() {
		var notif Notification
		err := rows.Scan(
			&notif.ID,
			&notif.UserID,
			&notif.Type,
			&notif.Title,
			&notif.Message,
			&notif.RefType,
			&notif.RefID,
			&notif.IsRead,
			&notif.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// CountUnread counts the user's unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead flips one notification owned by userID to read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, userID string) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	return nil
}

// MarkAllRead flips every unread notification of userID and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}

	return result.RowsAffected(), nil
}
