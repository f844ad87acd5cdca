package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/secrets"
)

// TwilioSender sends content-template messages through the Twilio Messaging
// API. The same sender serves WhatsApp and SMS; WhatsApp addresses carry the
// channel prefix on both ends.
type TwilioSender struct {
	client      *twilio.RestClient
	from        string
	templateSID string
	whatsapp    bool
}

// NewTwilioWhatsAppSender builds a Sender for the WhatsApp channel.
func NewTwilioWhatsAppSender(cfg models.ChannelConfig, secret []byte) (Sender, error) {
	return newTwilioSender(cfg, secret, true)
}

// NewTwilioSMSSender builds a Sender for the SMS channel.
func NewTwilioSMSSender(cfg models.ChannelConfig, secret []byte) (Sender, error) {
	return newTwilioSender(cfg, secret, false)
}

func newTwilioSender(cfg models.ChannelConfig, secret []byte, whatsapp bool) (Sender, error) {
	creds, err := secrets.DecodeTwilio(secret)
	if err != nil {
		return nil, err
	}
	if cfg.SenderID == "" {
		return nil, fmt.Errorf("channel config has no sender identity")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})
	return &TwilioSender{
		client:      client,
		from:        cfg.SenderID,
		templateSID: creds.TemplateSID,
		whatsapp:    whatsapp,
	}, nil
}

// SendTemplate dispatches the content template with the variable map and
// returns the Twilio message SID.
func (s *TwilioSender) SendTemplate(ctx context.Context, input SendInput) (string, error) {
	variablesJSON, err := json.Marshal(input.Variables)
	if err != nil {
		return "", fmt.Errorf("encoding content variables: %w", err)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(s.address(s.from))
	params.SetTo(s.address(input.Recipient))
	params.SetContentSid(s.templateSID)
	params.SetContentVariables(string(variablesJSON))

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send failed: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("twilio send returned no message sid")
	}
	return *resp.Sid, nil
}

func (s *TwilioSender) address(number string) string {
	if s.whatsapp {
		return "whatsapp:" + number
	}
	return number
}
