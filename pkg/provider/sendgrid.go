package provider

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/secrets"
)

const sendgridHost = "https://api.sendgrid.com"

// SendGridSender sends dynamic-template email through the SendGrid v3 Mail
// Send API.
type SendGridSender struct {
	apiKey     string
	fromEmail  string
	fromName   string
	templateID string
	host       string
}

// NewSendGridSender builds a Sender for the email channel. The sender
// identity comes from the credential blob, not the channel config.
func NewSendGridSender(cfg models.ChannelConfig, secret []byte) (Sender, error) {
	creds, err := secrets.DecodeSendGrid(secret)
	if err != nil {
		return nil, err
	}
	return &SendGridSender{
		apiKey:     creds.AuthValue,
		fromEmail:  creds.FromEmail,
		fromName:   creds.FromName,
		templateID: creds.TemplateID,
		host:       sendgridHost,
	}, nil
}

// SendTemplate dispatches the dynamic template with the variable map and
// returns the X-Message-Id assigned by SendGrid.
func (s *SendGridSender) SendTemplate(ctx context.Context, input SendInput) (string, error) {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.SetTemplateID(s.templateID)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", input.Recipient))
	for key, value := range input.Variables {
		p.SetDynamicTemplateData(key, value)
	}
	m.AddPersonalizations(p)

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sendgrid send returned status %d: %s", resp.StatusCode, resp.Body)
	}

	ids := resp.Headers["X-Message-Id"]
	if len(ids) == 0 || ids[0] == "" {
		return "", fmt.Errorf("sendgrid send returned no X-Message-Id")
	}
	return ids[0], nil
}
