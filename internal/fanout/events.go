package fanout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/notify"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/recipient"
)

// Event names as used on the ingestion endpoint and in logs.
const (
	EventReportCreated       = "report-created"
	EventActionCreated       = "action-created"
	EventReportVoted         = "report-voted"
	EventReportVerified      = "report-verified"
	EventReportStatusChanged = "report-status-changed"
	EventCommentAdded        = "comment-added"
)

// ReportCreated is published when a citizen files a report. Coordinates are
// mandatory; a report without them would be matched against (0,0).
type ReportCreated struct {
	ReportID string   `json:"reportId" validate:"required"`
	AuthorID string   `json:"authorId" validate:"required"`
	Category string   `json:"category" validate:"required"`
	Title    string   `json:"title" validate:"required"`
	Lat      *float64 `json:"lat" validate:"required,latitude"`
	Lng      *float64 `json:"lng" validate:"required,longitude"`
	District string   `json:"district"`
}

// ActionCreated is published when a positive action is scheduled. Coordinates
// are optional; without them only the district is matched.
type ActionCreated struct {
	ActionID string   `json:"actionId" validate:"required"`
	AuthorID string   `json:"authorId" validate:"required"`
	Category string   `json:"category"`
	Title    string   `json:"title" validate:"required"`
	Lat      *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng      *float64 `json:"lng" validate:"omitempty,longitude"`
	District string   `json:"district"`
}

// ReportVoted is published on a vote toggle. Only upvotes notify.
type ReportVoted struct {
	ReportID string `json:"reportId" validate:"required"`
	OwnerID  string `json:"ownerId" validate:"required"`
	ActorID  string `json:"actorId" validate:"required"`
	Title    string `json:"title"`
	Upvote   bool   `json:"upvote"`
}

// ReportVerified is published when a user verifies a report.
type ReportVerified struct {
	ReportID string `json:"reportId" validate:"required"`
	OwnerID  string `json:"ownerId" validate:"required"`
	ActorID  string `json:"actorId" validate:"required"`
	Title    string `json:"title"`
}

// ReportStatusChanged is published when a report moves through its workflow.
type ReportStatusChanged struct {
	ReportID string `json:"reportId" validate:"required"`
	OwnerID  string `json:"ownerId" validate:"required"`
	ActorID  string `json:"actorId" validate:"required"`
	Title    string `json:"title"`
	Status   string `json:"status" validate:"required"`
}

// CommentAdded is published when someone comments on a report or action.
type CommentAdded struct {
	TargetType  string `json:"targetType" validate:"required,oneof=report action"`
	TargetID    string `json:"targetId" validate:"required"`
	OwnerID     string `json:"ownerId" validate:"required"`
	ActorID     string `json:"actorId" validate:"required"`
	TargetTitle string `json:"targetTitle"`
}

func titleOr(title, fallback string) string {
	if title == "" {
		return fallback
	}
	return title
}

// ReportCreated alerts nearby residents and every government account.
func (o *Orchestrator) ReportCreated(ctx context.Context, ev ReportCreated) Result {
	c := notify.Content{
		Kind:    db.KindNewReport,
		Title:   "Laporan Baru di Sekitar Anda",
		Message: fmt.Sprintf("%s: %s", ev.Category, ev.Title),
		RefType: db.RefReport,
		RefID:   ev.ReportID,
	}

	return o.detach(ctx, EventReportCreated, func(ctx context.Context, log *zap.Logger) {
		origin := recipient.Origin{Lat: *ev.Lat, Lng: *ev.Lng}
		ids := o.resolver.ResolveRadius(ctx, origin, ev.Category, ev.District, ev.AuthorID)
		ids = append(ids, o.resolver.ResolveGovernment(ctx)...)
		ids = without(notify.Unique(ids), ev.AuthorID)

		if len(ids) == 0 {
			log.Debug("no recipients for new report", zap.String("report_id", ev.ReportID))
			return
		}
		o.deliver(ctx, log, ids, c)
	})
}

// ActionCreated alerts residents near a new positive action.
func (o *Orchestrator) ActionCreated(ctx context.Context, ev ActionCreated) Result {
	c := notify.Content{
		Kind:    db.KindNewAction,
		Title:   "Aksi Baru di Sekitar Anda",
		Message: fmt.Sprintf("Ayo ikut serta: %s", ev.Title),
		RefType: db.RefAction,
		RefID:   ev.ActionID,
	}

	return o.detach(ctx, EventActionCreated, func(ctx context.Context, log *zap.Logger) {
		var ids []string
		if ev.Lat != nil && ev.Lng != nil {
			ids = o.resolver.ResolveRadius(ctx, recipient.Origin{Lat: *ev.Lat, Lng: *ev.Lng}, ev.Category, ev.District, ev.AuthorID)
		} else {
			ids = o.resolver.ResolveZone(ctx, ev.District, ev.AuthorID)
		}
		ids = without(notify.Unique(ids), ev.AuthorID)

		if len(ids) == 0 {
			log.Debug("no recipients for new action", zap.String("action_id", ev.ActionID))
			return
		}
		o.deliver(ctx, log, ids, c)
	})
}

// ReportVoted tells the owner their report was upvoted. Removing a vote is
// silent; every new upvote notifies again.
func (o *Orchestrator) ReportVoted(ctx context.Context, ev ReportVoted) Result {
	if !ev.Upvote {
		return Skipped
	}
	return o.NotifyOne(ctx, ev.ActorID, ev.OwnerID, notify.Content{
		Kind:    db.KindVote,
		Title:   "Laporan Anda Didukung",
		Message: fmt.Sprintf("Seseorang mendukung laporan \"%s\".", titleOr(ev.Title, "Anda")),
		RefType: db.RefReport,
		RefID:   ev.ReportID,
	})
}

// ReportVerified tells the owner someone confirmed their report.
func (o *Orchestrator) ReportVerified(ctx context.Context, ev ReportVerified) Result {
	return o.NotifyOne(ctx, ev.ActorID, ev.OwnerID, notify.Content{
		Kind:    db.KindVerify,
		Title:   "Laporan Diverifikasi",
		Message: fmt.Sprintf("Laporan \"%s\" telah diverifikasi oleh warga lain.", titleOr(ev.Title, "Anda")),
		RefType: db.RefReport,
		RefID:   ev.ReportID,
	})
}

// ReportStatusChanged tells the owner their report moved to a new status.
func (o *Orchestrator) ReportStatusChanged(ctx context.Context, ev ReportStatusChanged) Result {
	return o.NotifyOne(ctx, ev.ActorID, ev.OwnerID, notify.Content{
		Kind:    db.KindStatusUpdate,
		Title:   "Status Laporan Diperbarui",
		Message: fmt.Sprintf("Status laporan \"%s\" diubah ke \"%s\".", titleOr(ev.Title, "Anda"), ev.Status),
		RefType: db.RefReport,
		RefID:   ev.ReportID,
	})
}

// CommentAdded tells the owner of a report or action about a new comment.
func (o *Orchestrator) CommentAdded(ctx context.Context, ev CommentAdded) Result {
	noun := "aksi"
	if ev.TargetType == db.RefReport {
		noun = "laporan"
	}
	return o.NotifyOne(ctx, ev.ActorID, ev.OwnerID, notify.Content{
		Kind:    db.KindComment,
		Title:   "Komentar Baru",
		Message: fmt.Sprintf("Seseorang mengomentari %s \"%s\".", noun, titleOr(ev.TargetTitle, "Anda")),
		RefType: ev.TargetType,
		RefID:   ev.TargetID,
	})
}

func without(ids []string, exclude string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
