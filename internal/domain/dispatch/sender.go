package dispatch

import (
	"context"

	"github.com/okian/podium/internal/domain/notify"
)

// Message is what the coordinator asks a sender to deliver.
type Message struct {
	TransitionID string
	To           string // E.164
	Template     notify.Template
	Variables    map[string]string
}

// Payload is the provider-ready request. Fields is the exact outbound payload
// and is stored with the delivery record for diagnostics.
type Payload struct {
	Message          Message
	ProviderTemplate string
	Fields           map[string]string
}

// Result is the provider's answer to a send.
type Result struct {
	ProviderMessageID string
	// Queued is set when the provider accepted the message without
	// confirming delivery yet.
	Queued bool
	Status string
}

// Sender delivers templated messages.
type Sender interface {
	// Prepare maps a message onto the provider. Missing credentials or an
	// unmapped template fail here with ErrConfiguration, before any call.
	Prepare(msg Message) (Payload, error)
	// Send performs the provider call. Failures wrap ErrDelivery.
	Send(ctx context.Context, p Payload) (Result, error)
}
