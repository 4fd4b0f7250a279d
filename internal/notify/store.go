// Package notify persists in-app notifications and serves the feed reads.
package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
)

// Repository is the row-level storage the Store writes through.
type Repository interface {
	Insert(ctx context.Context, n *db.Notification) error
	InsertMany(ctx context.Context, ns []*db.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*db.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// ErrUnknownKind is returned by content validation for kinds outside the enum.
var ErrUnknownKind = errors.New("unknown notification kind")

var newID = uuid.New

// Store writes notification rows. Record and RecordBulk never fail the caller:
// errors are logged and reported as false.
type Store struct {
	repo   Repository
	logger *zap.Logger
}

// NewStore creates a Store over repo.
func NewStore(repo Repository, logger *zap.Logger) *Store {
	return &Store{repo: repo, logger: logger}
}

func (s *Store) prepare(c Content) (Content, error) {
	if !db.IsKnownKind(c.Kind) {
		return c, ErrUnknownKind
	}
	normalized, ok := c.Normalize()
	if !ok {
		s.logger.Warn("dropping inconsistent notification reference",
			zap.String("kind", c.Kind),
			zap.String("ref_type", c.RefType),
			zap.String("ref_id", c.RefID),
		)
	}
	return normalized, nil
}

// Record inserts one notification for recipientID.
func (s *Store) Record(ctx context.Context, recipientID string, c Content) bool {
	c, err := s.prepare(c)
	if err != nil {
		s.logger.Error("rejecting notification", zap.String("kind", c.Kind), zap.Error(err))
		return false
	}

	if err := s.repo.Insert(ctx, c.row(recipientID)); err != nil {
		metrics.RecordNotificationWriteFailure(c.Kind)
		s.logger.Error("failed to record notification",
			zap.String("recipient_id", recipientID),
			zap.String("kind", c.Kind),
			zap.Error(err),
		)
		return false
	}

	metrics.RecordNotificationsWritten(c.Kind, 1)
	return true
}

// RecordBulk inserts one row per unique id in a single batch. An empty list
// is a successful no-op.
func (s *Store) RecordBulk(ctx context.Context, recipientIDs []string, c Content) bool {
	ids := Unique(recipientIDs)
	if len(ids) == 0 {
		return true
	}

	c, err := s.prepare(c)
	if err != nil {
		s.logger.Error("rejecting notification", zap.String("kind", c.Kind), zap.Error(err))
		return false
	}

	rows := make([]*db.Notification, len(ids))
	for i, id := range ids {
		rows[i] = c.row(id)
	}

	if err := s.repo.InsertMany(ctx, rows); err != nil {
		metrics.RecordNotificationWriteFailure(c.Kind)
		s.logger.Error("failed to record notifications",
			zap.Int("recipient_count", len(ids)),
			zap.String("kind", c.Kind),
			zap.Error(err),
		)
		return false
	}

	metrics.RecordNotificationsWritten(c.Kind, len(rows))
	return true
}

// Feed is one page of a user's notifications.
type Feed struct {
	Notifications []*db.Notification `json:"notifications"`
	UnreadCount   int                `json:"unreadCount"`
}

// List returns the newest notifications for userID with the unread total.
func (s *Store) List(ctx context.Context, userID string, limit int) (*Feed, error) {
	items, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*db.Notification{}
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Feed{Notifications: items, UnreadCount: unread}, nil
}

// UnreadCount returns how many of userID's notifications are unread.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one notification read. Returns db.ErrNotFound (wrapped) when
// the row does not exist or belongs to another user.
func (s *Store) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// MarkAllRead marks every unread notification of userID read.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("marked notifications read", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}

// Unique returns ids with duplicates and empty strings removed, keeping first
// occurrence order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
