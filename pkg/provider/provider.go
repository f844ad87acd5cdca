// Package provider adapts the channel vendors' template-send APIs behind a
// single Sender contract. A Sender is built per message from the tenant's
// channel config and credential blob; nothing vendor-specific leaks out
// beyond the provider message identifier.
package provider

import (
	"context"
	"fmt"

	"github.com/heraldhq/herald/pkg/models"
)

// SendInput carries everything a template send needs beyond what the Sender
// was constructed with: the recipient and the filled variable slots.
type SendInput struct {
	Recipient string
	Variables map[string]string
}

// Sender dispatches one templated message and returns the provider's message
// identifier.
type Sender interface {
	SendTemplate(ctx context.Context, input SendInput) (string, error)
}

// Builder constructs a Sender from the tenant's channel config and decoded
// credential blob.
type Builder func(cfg models.ChannelConfig, secret []byte) (Sender, error)

// Registry resolves the Builder for a channel.
type Registry map[models.Channel]Builder

// DefaultRegistry wires the production vendors: Twilio for WhatsApp and SMS,
// SendGrid for email.
func DefaultRegistry() Registry {
	return Registry{
		models.ChannelWhatsApp: NewTwilioWhatsAppSender,
		models.ChannelSMS:      NewTwilioSMSSender,
		models.ChannelEmail:    NewSendGridSender,
	}
}

// Build returns a Sender for the channel, or an error when the channel has
// no registered vendor.
func (r Registry) Build(channel models.Channel, cfg models.ChannelConfig, secret []byte) (Sender, error) {
	builder, ok := r[channel]
	if !ok {
		return nil, fmt.Errorf("no provider registered for channel %q", channel)
	}
	return builder(cfg, secret)
}
