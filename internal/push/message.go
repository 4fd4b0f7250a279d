// Package push delivers notifications to devices through the Expo push gateway
// and retires tokens the gateway reports as gone.
package push

import (
	"regexp"
	"strings"
)

// Message is one outbound push for one device token.
type Message struct {
	To        string         `json:"to"`
	Title     string         `json:"title,omitempty"`
	Body      string         `json:"body,omitempty"`
	Sound     string         `json:"sound,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	ChannelID string         `json:"channelId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Ticket statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrDeviceNotRegistered is the ticket error code for a token that will never
// accept pushes again.
const ErrDeviceNotRegistered = "DeviceNotRegistered"

// Ticket is the gateway's per-message answer to a send.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// TicketDetails carries the machine-readable error code.
type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// DeviceNotRegistered reports whether the ticket says the token is dead.
func (t Ticket) DeviceNotRegistered() bool {
	return t.Status == StatusError && t.Details != nil && t.Details.Error == ErrDeviceNotRegistered
}

var uuidToken = regexp.MustCompile(`(?i)^[a-z0-9]{8}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{12}$`)

// IsExpoPushToken reports whether token has a shape the gateway accepts.
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return uuidToken.MatchString(token)
}

// Chunk splits messages into consecutive batches of at most size.
func Chunk(messages []Message, size int) [][]Message {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]Message, 0, (len(messages)+size-1)/size)
	for start := 0; start < len(messages); start += size {
		end := min(start+size, len(messages))
		chunks = append(chunks, messages[start:end])
	}
	return chunks
}
