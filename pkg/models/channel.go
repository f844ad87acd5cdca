// Package models contains the shared data contract between the ingress router
// and the channel processor: the Context Object, conversation records, and
// tenant configuration snapshots. JSON field names are stable — downstream
// reply and reconciliation tooling reads them.
package models

import "fmt"

// Channel identifies a messaging channel.
type Channel string

// Supported channel methods.
const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{ChannelWhatsApp, ChannelSMS, ChannelEmail}

// Valid reports whether c is a supported channel method.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

// RequiresTel reports whether the channel addresses recipients by phone number.
func (c Channel) RequiresTel() bool {
	return c == ChannelWhatsApp || c == ChannelSMS
}

// ParseChannel converts a string into a Channel, rejecting unknown values.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel method %q", s)
	}
	return c, nil
}
