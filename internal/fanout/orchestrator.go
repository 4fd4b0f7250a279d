// Package fanout turns domain events into notification rows and push jobs
// without holding up the request that produced the event.
package fanout

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/notify"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/push"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/recipient"
)

// Submitter runs fn detached from the caller. Submit must not block.
type Submitter interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

// PushQueue hands a push job to whatever delivers it.
type PushQueue interface {
	Enqueue(ctx context.Context, job push.Job) error
}

// Recorder persists notification rows.
type Recorder interface {
	Record(ctx context.Context, recipientID string, c notify.Content) bool
	RecordBulk(ctx context.Context, recipientIDs []string, c notify.Content) bool
}

// Resolver picks recipients for broadcast events.
type Resolver interface {
	ResolveRadius(ctx context.Context, origin recipient.Origin, category, fallbackZone, excludeUserID string) []string
	ResolveZone(ctx context.Context, zone, excludeUserID string) []string
	ResolveGovernment(ctx context.Context) []string
}

// Result says what became of an event handed to the Orchestrator.
type Result int

const (
	// Skipped means the event needed no fan-out (self-action, removed vote).
	Skipped Result = iota
	// Scheduled means a fan-out task was accepted by the pool.
	Scheduled
	// Dropped means the pool refused the task; the producer should retry.
	Dropped
)

func (r Result) String() string {
	switch r {
	case Skipped:
		return "skipped"
	case Scheduled:
		return "scheduled"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Orchestrator is the single entry point event producers call.
type Orchestrator struct {
	store    Recorder
	resolver Resolver
	queue    PushQueue
	tasks    Submitter
	logger   *zap.Logger
}

// New creates an Orchestrator.
func New(store Recorder, resolver Resolver, queue PushQueue, tasks Submitter, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		resolver: resolver,
		queue:    queue,
		tasks:    tasks,
		logger:   logger,
	}
}

// NotifyOne notifies a single user about something actorID did.
// Self-notification and empty ids are skipped.
func (o *Orchestrator) NotifyOne(ctx context.Context, actorID, recipientID string, c notify.Content) Result {
	if recipientID == "" || recipientID == actorID {
		return Skipped
	}
	return o.detach(ctx, c.Kind, func(ctx context.Context, log *zap.Logger) {
		o.deliver(ctx, log, []string{recipientID}, c)
	})
}

// NotifyMany notifies every unique id in recipientIDs. An empty set is a no-op.
func (o *Orchestrator) NotifyMany(ctx context.Context, recipientIDs []string, c notify.Content) Result {
	ids := notify.Unique(recipientIDs)
	if len(ids) == 0 {
		return Skipped
	}
	return o.detach(ctx, c.Kind, func(ctx context.Context, log *zap.Logger) {
		o.deliver(ctx, log, ids, c)
	})
}

// detach schedules fn on the task pool. ctx only contributes the request id
// for log correlation; fn runs on the pool's own context.
func (o *Orchestrator) detach(ctx context.Context, name string, fn func(context.Context, *zap.Logger)) Result {
	log := o.logger.With(zap.String("event", name))
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		log = log.With(zap.String("request_id", reqID))
	}

	accepted := o.tasks.Submit(name, func(taskCtx context.Context) {
		fn(taskCtx, log)
	})
	if !accepted {
		log.Warn("fan-out dropped")
		return Dropped
	}
	return Scheduled
}

// deliver writes rows then pushes. The push is attempted even if the write
// failed so a database hiccup does not also silence devices.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, ids []string, c notify.Content) {
	metrics.RecordFanout(c.Kind, len(ids))

	var stored bool
	if len(ids) == 1 {
		stored = o.store.Record(ctx, ids[0], c)
	} else {
		stored = o.store.RecordBulk(ctx, ids, c)
	}

	normalized, _ := c.Normalize()
	job := push.Job{
		RecipientIDs: ids,
		Title:        normalized.Title,
		Body:         normalized.Message,
		Data:         normalized.PushData(),
	}
	if err := o.queue.Enqueue(ctx, job); err != nil {
		log.Error("failed to enqueue push", zap.Int("recipient_count", len(ids)), zap.Error(err))
	}

	log.Info("fan-out complete",
		zap.String("kind", c.Kind),
		zap.Int("recipient_count", len(ids)),
		zap.Bool("stored", stored),
	)
}
