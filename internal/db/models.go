package db

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one in-app alert for one user about one event.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RefType   *string   `json:"ref_type"`
	RefID     *string   `json:"ref_id"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification kinds
const (
	KindStatusUpdate = "status_update"
	KindVote         = "vote"
	KindVerify       = "verify"
	KindComment      = "comment"
	KindNewReport    = "new_report"
	KindNewAction    = "new_action"
	KindInfo         = "info"
)

// Reference kinds for deep-linking
const (
	RefReport = "report"
	RefAction = "action"
)

// IsKnownKind reports whether kind is one of the notification kinds.
func IsKnownKind(kind string) bool {
	switch kind {
	case KindStatusUpdate, KindVote, KindVerify, KindComment, KindNewReport, KindNewAction, KindInfo:
		return true
	}
	return false
}

// IsKnownRef reports whether ref is a valid reference kind.
func IsKnownRef(ref string) bool {
	return ref == RefReport || ref == RefAction
}

// DeviceToken is the current ownership record for a push-capable device.
type DeviceToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Platforms
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// UserLocation is the read-only slice of a user profile the resolver needs.
// Lat/Lng are both set or the user is treated as having no coordinates.
type UserLocation struct {
	UserID   string
	Lat      *float64
	Lng      *float64
	District *string
}

// HasCoordinates reports whether both latitude and longitude are present.
func (u UserLocation) HasCoordinates() bool {
	return u.Lat != nil && u.Lng != nil
}

// RoleGovernment is the elevated role whose users receive every new report.
const RoleGovernment = "pemerintah"
