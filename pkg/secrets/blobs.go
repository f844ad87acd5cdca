package secrets

import (
	"encoding/json"
	"fmt"
)

// LLMCredentials is the LLM credential blob.
type LLMCredentials struct {
	AIAPIKey string `json:"ai_api_key"`
}

// TwilioCredentials is the WhatsApp/SMS provider blob.
type TwilioCredentials struct {
	AccountSID  string `json:"twilio_account_sid"`
	AuthToken   string `json:"twilio_auth_token"`
	TemplateSID string `json:"twilio_template_sid"`
}

// SendGridCredentials is the email provider blob.
type SendGridCredentials struct {
	AuthValue  string `json:"sendgrid_auth_value"`
	FromEmail  string `json:"sendgrid_from_email"`
	FromName   string `json:"sendgrid_from_name"`
	TemplateID string `json:"sendgrid_template_id"`
}

// DecodeLLM parses and validates an LLM credential blob.
func DecodeLLM(data []byte) (*LLMCredentials, error) {
	var c LLMCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding LLM credentials: %w", err)
	}
	if c.AIAPIKey == "" {
		return nil, fmt.Errorf("LLM credentials missing ai_api_key")
	}
	return &c, nil
}

// DecodeTwilio parses and validates a Twilio credential blob.
func DecodeTwilio(data []byte) (*TwilioCredentials, error) {
	var c TwilioCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding Twilio credentials: %w", err)
	}
	if c.AccountSID == "" || c.AuthToken == "" || c.TemplateSID == "" {
		return nil, fmt.Errorf("Twilio credentials incomplete")
	}
	return &c, nil
}

// DecodeSendGrid parses and validates a SendGrid credential blob.
func DecodeSendGrid(data []byte) (*SendGridCredentials, error) {
	var c SendGridCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding SendGrid credentials: %w", err)
	}
	if c.AuthValue == "" || c.FromEmail == "" || c.TemplateID == "" {
		return nil, fmt.Errorf("SendGrid credentials incomplete")
	}
	return &c, nil
}
