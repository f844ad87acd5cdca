package models

import "encoding/json"

// ContextObject is the immutable record assembled by the ingress router and
// consumed by the channel processor. It is serialized as UTF-8 JSON into the
// work-queue message body and must round-trip losslessly.
type ContextObject struct {
	Metadata           Metadata           `json:"metadata"`
	FrontendPayload    FrontendPayload    `json:"frontend_payload"`
	CompanyDataPayload CompanyDataPayload `json:"company_data_payload"`
	ConversationData   ConversationData   `json:"conversation_data"`
}

// Metadata identifies the producing router build and creation time.
type Metadata struct {
	RouterVersion string `json:"router_version"`
	CreatedAt     string `json:"created_at"` // RFC 3339, UTC
}

// FrontendPayload echoes the validated client request.
type FrontendPayload struct {
	CompanyData   CompanyData    `json:"company_data"`
	RecipientData RecipientData  `json:"recipient_data"`
	RequestData   RequestData    `json:"request_data"`
	ProjectData   map[string]any `json:"project_data,omitempty"`
}

// CompanyData identifies the tenant project making the request.
type CompanyData struct {
	CompanyID string `json:"company_id"`
	ProjectID string `json:"project_id"`
}

// RecipientData identifies the message recipient. The identifier required
// depends on the channel: tel for WhatsApp/SMS, email for email.
type RecipientData struct {
	RecipientFirstName string `json:"recipient_first_name,omitempty"`
	RecipientLastName  string `json:"recipient_last_name,omitempty"`
	RecipientTel       string `json:"recipient_tel,omitempty"`
	RecipientEmail     string `json:"recipient_email,omitempty"`
	CommsConsent       bool   `json:"comms_consent"`
}

// RequestData carries the logical-request identity and channel selection.
// RequestID is the client's idempotency key; it is folded into the
// conversation id.
type RequestData struct {
	RequestID               string  `json:"request_id"`
	ChannelMethod           Channel `json:"channel_method"`
	InitialRequestTimestamp string  `json:"initial_request_timestamp"`
}

// CompanyDataPayload is the snapshot of the tenant+project configuration
// relevant to this channel, taken at ingress time.
type CompanyDataPayload struct {
	AllowedChannels []string      `json:"allowed_channels"`
	ChannelConfig   ChannelConfig `json:"channel_config"`
	AIConfig        AIConfig      `json:"ai_config"`
	TenantReps      []TenantRep   `json:"tenant_reps,omitempty"`
	RateLimits      *RateLimits   `json:"rate_limits,omitempty"`
}

// ConversationData holds the conversation identity plus placeholders the
// channel processor fills after the LLM and provider calls.
type ConversationData struct {
	ConversationID    string `json:"conversation_id"`
	ThreadID          string `json:"thread_id"`
	ProviderMessageID string `json:"provider_message_id"`
	ProcessingTimeMS  int64  `json:"processing_time_ms"`
}

// PrimaryChannel returns the recipient identifier used as the state-store
// partition key: phone number for WhatsApp/SMS, email address for email.
func (c *ContextObject) PrimaryChannel() string {
	if c.FrontendPayload.RequestData.ChannelMethod.RequiresTel() {
		return c.FrontendPayload.RecipientData.RecipientTel
	}
	return c.FrontendPayload.RecipientData.RecipientEmail
}

// Channel returns the channel method this context targets.
func (c *ContextObject) Channel() Channel {
	return c.FrontendPayload.RequestData.ChannelMethod
}

// Marshal serializes the context object for the queue message body.
func (c *ContextObject) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalContextObject decodes a queue message body back into a context
// object.
func UnmarshalContextObject(data []byte) (*ContextObject, error) {
	var ctx ContextObject
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, err
	}
	return &ctx, nil
}
