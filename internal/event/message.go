package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// timeNow is a variable to allow testing with fixed timestamps.
var timeNow = time.Now

// Message is a published message. Messages are immutable once published and
// are not retained by the bus after delivery.
type Message struct {
	// ID is a unique identifier for this message.
	ID string

	// Type is the message type subscribers register for (e.g. "plugin:activated").
	Type string

	// Payload is the type-erased message data.
	Payload any

	// Timestamp is when the message was published.
	Timestamp time.Time

	// Source identifies the publisher. May be empty.
	Source string

	// Metadata carries optional publisher-supplied annotations.
	Metadata map[string]any
}

// Outgoing describes a message to publish with PublishMessage.
type Outgoing struct {
	Type     string
	Payload  any
	Source   string
	Metadata map[string]any
}

func newMessage(out Outgoing) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      out.Type,
		Payload:   out.Payload,
		Timestamp: timeNow(),
		Source:    out.Source,
		Metadata:  maps.Clone(out.Metadata),
	}
}

// PayloadAs returns the message payload asserted to T.
func PayloadAs[T any](msg Message) (T, bool) {
	t, ok := msg.Payload.(T)
	return t, ok
}
