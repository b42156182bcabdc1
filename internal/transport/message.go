// Package transport sends WhatsApp messages through the Twilio Messages API.
package transport

//go:generate mockgen -source=message.go -destination=mocks/mocks.go -package=mocks Sender

import "context"

// Message is one outbound send. Set Body and optionally MediaURL for a
// session message, or TemplateSID and Variables for an approved template.
type Message struct {
	To          string
	Body        string
	MediaURL    string
	TemplateSID string
	Variables   map[string]string
}

// Sender delivers a message and returns the transport message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}
