package channels

import (
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// StreamingMode selects how a channel receives streamed answers.
type StreamingMode int

const (
	// StreamingNone suppresses outbound delivery entirely. Used for
	// surfaces whose output goes elsewhere, like the scheduler channel.
	StreamingNone StreamingMode = iota

	// StreamingEdit sends the first delta as a fresh message and edits
	// it in place as text accumulates.
	StreamingEdit

	// StreamingResend buffers deltas and sends the complete answer as
	// one or more sized chunks at the end.
	StreamingResend
)

// String returns the mode name.
func (m StreamingMode) String() string {
	switch m {
	case StreamingNone:
		return "none"
	case StreamingEdit:
		return "edit"
	case StreamingResend:
		return "resend"
	default:
		return "unknown"
	}
}

// StreamingBehavior captures a platform's streaming characteristics: how
// updates are delivered, how often edits may fire, and how long a single
// message may be.
type StreamingBehavior struct {
	Mode             StreamingMode
	UpdateInterval   time.Duration
	MaxMessageLength int
	SupportsEdit     bool
}

// DefaultBehaviors maps each channel type to its platform constraints.
var DefaultBehaviors = map[models.ChannelType]StreamingBehavior{
	models.ChannelTelegram: {
		Mode:             StreamingEdit,
		UpdateInterval:   time.Second,
		MaxMessageLength: 4096,
		SupportsEdit:     true,
	},
	models.ChannelDiscord: {
		Mode:             StreamingEdit,
		UpdateInterval:   time.Second,
		MaxMessageLength: 2000,
		SupportsEdit:     true,
	},
	models.ChannelSlack: {
		Mode:             StreamingEdit,
		UpdateInterval:   2 * time.Second,
		MaxMessageLength: 40000,
		SupportsEdit:     true,
	},
	models.ChannelCanvas: {
		// The gateway streams raw deltas over the websocket itself.
		Mode: StreamingNone,
	},
	models.ChannelCron: {
		Mode: StreamingNone,
	},
}

// BehaviorFor returns the behavior for a channel type, falling back to a
// conservative resend profile for unknown platforms.
func BehaviorFor(channelType models.ChannelType) StreamingBehavior {
	if b, ok := DefaultBehaviors[channelType]; ok {
		return b
	}
	return StreamingBehavior{
		Mode:             StreamingResend,
		MaxMessageLength: 4000,
	}
}
