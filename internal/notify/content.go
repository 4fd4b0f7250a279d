package notify

import "github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"

// Content is the part of a notification shared by every recipient of one event.
// RefType and RefID are either both set or both empty.
type Content struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	RefType string `json:"ref_type,omitempty"`
	RefID   string `json:"ref_id,omitempty"`
}

// Normalize returns c with an inconsistent reference cleared. The bool is
// false when something had to be dropped.
func (c Content) Normalize() (Content, bool) {
	hasType, hasID := c.RefType != "", c.RefID != ""
	if hasType != hasID || (hasType && !db.IsKnownRef(c.RefType)) {
		c.RefType, c.RefID = "", ""
		return c, false
	}
	return c, true
}

// HasRef reports whether the content links to a report or action.
func (c Content) HasRef() bool {
	return c.RefType != "" && c.RefID != ""
}

// PushData is the deep-link payload clients read from a push message.
func (c Content) PushData() map[string]any {
	data := map[string]any{"refType": nil, "refId": nil}
	if c.HasRef() {
		data["refType"] = c.RefType
		data["refId"] = c.RefID
	}
	return data
}

func (c Content) row(recipientID string) *db.Notification {
	n := &db.Notification{
		ID:      newID(),
		UserID:  recipientID,
		Type:    c.Kind,
		Title:   c.Title,
		Message: c.Message,
	}
	if c.HasRef() {
		refType, refID := c.RefType, c.RefID
		n.RefType, n.RefID = &refType, &refID
	}
	return n
}
