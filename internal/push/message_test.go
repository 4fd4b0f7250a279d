package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExpoPushToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]", true},
		{"ExpoPushToken[yyyyyyyyyyyyyyyyyyyyyy]", true},
		{"3F2504E0-4F89-11D3-9A0C-0305E82C3301", true},
		{"ExponentPushToken[unterminated", false},
		{"fcm:APA91bHun4MxP5egoKMwt2KZFBaFUH", false},
		{"", false},
		{"not-a-token", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsExpoPushToken(tt.token), "token %q", tt.token)
	}
}

func TestChunk(t *testing.T) {
	msgs := make([]Message, 250)
	for i := range msgs {
		msgs[i].To = string(rune('a' + i%26))
	}

	chunks := Chunk(msgs, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
	assert.Equal(t, msgs[200].To, chunks[2][0].To)
}

func TestChunk_EmptyAndDefaultSize(t *testing.T) {
	assert.Empty(t, Chunk(nil, 10))
	assert.Len(t, Chunk(make([]Message, 101), 0), 2)
}

func TestTicket_DeviceNotRegistered(t *testing.T) {
	assert.True(t, Ticket{Status: StatusError, Details: &TicketDetails{Error: ErrDeviceNotRegistered}}.DeviceNotRegistered())
	assert.False(t, Ticket{Status: StatusError, Details: &TicketDetails{Error: "MessageRateExceeded"}}.DeviceNotRegistered())
	assert.False(t, Ticket{Status: StatusError}.DeviceNotRegistered())
	assert.False(t, Ticket{Status: StatusOK}.DeviceNotRegistered())
}
