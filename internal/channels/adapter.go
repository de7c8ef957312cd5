// Package channels defines the adapter seam between the assistant core and
// messaging surfaces, the per-channel streaming behavior table, and the
// stream manager that turns agent events into sends and edits.
package channels

import (
	"context"
	"errors"

	"github.com/haasonsaas/aide/pkg/models"
)

var (
	// ErrNotConnected is returned when an adapter is used before Start.
	ErrNotConnected = errors.New("adapter not connected")
	// ErrEditUnsupported is returned when EditMessage is invoked on an
	// adapter that cannot edit.
	ErrEditUnsupported = errors.New("adapter does not support editing")
)

// Adapter is the seam every messaging surface implements. Adapters
// normalize platform events into InboundMessage and deliver outbound text;
// everything platform-specific stays behind this interface.
type Adapter interface {
	// Start connects to the platform and begins producing inbound
	// messages. It returns once the adapter is receiving.
	Start(ctx context.Context) error

	// Stop disconnects and closes the Messages channel. Safe to call
	// more than once.
	Stop(ctx context.Context) error

	// Send delivers text to a platform conversation and reports the
	// platform message id so callers can edit later.
	Send(ctx context.Context, channelID string, msg models.OutboundMessage) (models.SendResult, error)

	// Messages is the stream of normalized inbound messages. Closed on
	// Stop.
	Messages() <-chan *models.InboundMessage

	// Type identifies the platform.
	Type() models.ChannelType

	// Status reports the current connection state.
	Status() Status
}

// EditableAdapter is implemented by adapters whose platform can rewrite a
// sent message in place. The stream manager detects this capability once
// at construction.
type EditableAdapter interface {
	// EditMessage replaces the content of a previously sent message.
	EditMessage(ctx context.Context, channelID, messageID, content string) error
}

// Status is a point-in-time connection report.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}
