package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/fanout"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/notify"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/redis"
)

// DeviceRegistry is the slice of device.Registry the handlers use.
type DeviceRegistry interface {
	Upsert(ctx context.Context, userID, token, platform string) (*db.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
}

// FeedStore is the read side of notify.Store.
type FeedStore interface {
	List(ctx context.Context, userID string, limit int) (*notify.Feed, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// EventSink receives domain events from the rest of the backend.
type EventSink interface {
	ReportCreated(ctx context.Context, ev fanout.ReportCreated) fanout.Result
	ActionCreated(ctx context.Context, ev fanout.ActionCreated) fanout.Result
	ReportVoted(ctx context.Context, ev fanout.ReportVoted) fanout.Result
	ReportVerified(ctx context.Context, ev fanout.ReportVerified) fanout.Result
	ReportStatusChanged(ctx context.Context, ev fanout.ReportStatusChanged) fanout.Result
	CommentAdded(ctx context.Context, ev fanout.CommentAdded) fanout.Result
}

// RoleCache is the recipient cache control of recipient.Resolver.
type RoleCache interface {
	ForgetRole(ctx context.Context, role string) error
}

// Idempotency guards event ingestion against producer retries.
type Idempotency interface {
	CheckOrReserve(ctx context.Context, scope, key string) (*redis.IdempotencyResult, error)
	Store(ctx context.Context, scope, key string, result *redis.IdempotencyResult, ttl time.Duration) error
	Release(ctx context.Context, scope, key string) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Deps bundles the collaborators of a Handler. Idempotency and Roles may be nil.
type Deps struct {
	Devices     DeviceRegistry
	Feed        FeedStore
	Events      EventSink
	Roles       RoleCache
	Idempotency Idempotency
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	devices     DeviceRegistry
	feed        FeedStore
	idempotency Idempotency // nil if Redis not configured
	roles       RoleCache
	events      map[string]eventFunc
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{
		logger:      logger,
		devices:     deps.Devices,
		feed:        deps.Feed,
		idempotency: deps.Idempotency,
		roles:       deps.Roles,
		events:      eventTable(deps.Events),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
