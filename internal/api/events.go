package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/fanout"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/redis"
)

// EventAccepted is the 202 body of POST /internal/events/{event}. Scheduled is
// false when the event produced no fan-out (self-action, removed vote).
type EventAccepted struct {
	Event     string `json:"event"`
	Scheduled bool   `json:"scheduled"`
}

// eventFunc decodes and validates a request body, returning the call that
// hands the event to the orchestrator.
type eventFunc func(r *http.Request) (func() fanout.Result, error)

func ingest[T any](fire func(context.Context, T) fanout.Result) eventFunc {
	return func(r *http.Request) (func() fanout.Result, error) {
		var ev T
		if err := decode(r, &ev); err != nil {
			return nil, err
		}
		ctx := r.Context()
		return func() fanout.Result { return fire(ctx, ev) }, nil
	}
}

func eventTable(sink EventSink) map[string]eventFunc {
	if sink == nil {
		return map[string]eventFunc{}
	}
	return map[string]eventFunc{
		fanout.EventReportCreated:       ingest(sink.ReportCreated),
		fanout.EventActionCreated:       ingest(sink.ActionCreated),
		fanout.EventReportVoted:         ingest(sink.ReportVoted),
		fanout.EventReportVerified:      ingest(sink.ReportVerified),
		fanout.EventReportStatusChanged: ingest(sink.ReportStatusChanged),
		fanout.EventCommentAdded:        ingest(sink.CommentAdded),
	}
}

// IngestEvent handles POST /internal/events/{event}. An Idempotency-Key header
// makes producer retries safe: a repeated key replays the first response. A
// fan-out the pool refused answers 503 and leaves the key free for the retry.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")
	parse, ok := h.events[event]
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_event", "Unknown event", event)
		return
	}

	fire, err := parse(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid event payload", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(r.Context(), event, idempotencyKey)
		switch {
		case errors.Is(err, redis.ErrDuplicateRequest):
			metrics.RecordIdempotencyHit()
			h.writeError(w, http.StatusConflict, "duplicate_request", "Request already in progress", "")
			return
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding without",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
			idempotencyKey = ""
		case cached != nil:
			metrics.RecordIdempotencyHit()
			h.logger.Info("returning cached event response",
				zap.String("event", event),
				zap.String("idempotency_key", idempotencyKey),
			)
			w.Header().Set("X-Idempotency-Replayed", "true")
			h.writeJSON(w, cached.StatusCode, EventAccepted{Event: cached.Event, Scheduled: cached.Scheduled})
			return
		}
	}

	res := fire()

	if res == fanout.Dropped {
		if idempotencyKey != "" && h.idempotency != nil {
			if err := h.idempotency.Release(r.Context(), event, idempotencyKey); err != nil {
				h.logger.Warn("failed to release idempotency key",
					zap.Error(err),
					zap.String("idempotency_key", idempotencyKey),
				)
			}
		}
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusServiceUnavailable, "fanout_unavailable", "Fan-out queue is full, retry later", event)
		return
	}

	scheduled := res == fanout.Scheduled
	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{Event: event, StatusCode: http.StatusAccepted, Scheduled: scheduled}
		if err := h.idempotency.Store(r.Context(), event, idempotencyKey, result, redis.EventTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.logger.Debug("event accepted",
		zap.String("event", event),
		zap.Bool("scheduled", scheduled),
	)
	h.writeJSON(w, http.StatusAccepted, EventAccepted{Event: event, Scheduled: scheduled})
}
