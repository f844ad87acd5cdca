package models

import "time"

// ConversationStatus is the lifecycle state of a conversation record.
// Transitions are monotone: processing → initial_message_sent or
// processing → failed. Nothing else is permitted by the core.
type ConversationStatus string

// Conversation statuses.
const (
	StatusProcessing         ConversationStatus = "processing"
	StatusInitialMessageSent ConversationStatus = "initial_message_sent"
	StatusFailed             ConversationStatus = "failed"
)

// MessageEntry is one entry in a conversation's append-only message history.
type MessageEntry struct {
	Role             string `json:"role"` // "user" or "assistant"
	Content          string `json:"content"`
	Timestamp        string `json:"timestamp"` // RFC 3339, UTC
	InputTokens      int    `json:"input_tokens,omitempty"`
	OutputTokens     int    `json:"output_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms,omitempty"`
}

// ConversationRecord is the state-store row for one logical outbound request.
// Identity is (primary_channel, conversation_id); conversation_id alone is
// globally unique and serves as the idempotency key.
type ConversationRecord struct {
	PrimaryChannel string `json:"primary_channel"`
	ConversationID string `json:"conversation_id"`

	CompanyID          string             `json:"company_id"`
	ProjectID          string             `json:"project_id"`
	ChannelMethod      Channel            `json:"channel_method"`
	ConversationStatus ConversationStatus `json:"conversation_status"`
	TaskComplete       int                `json:"task_complete"` // 0 or 1
	RequestID          string             `json:"request_id"`
	RouterVersion      string             `json:"router_version"`
	ProcessorVersion   string             `json:"processor_version"`

	// Populated by the processor after the LLM and provider calls.
	ThreadID          string         `json:"thread_id,omitempty"`
	Messages          []MessageEntry `json:"messages"`
	ProcessingTimeMS  int64          `json:"processing_time_ms,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`

	// Verbatim snapshots for audit and reply handling.
	ProjectData   map[string]any `json:"project_data,omitempty"`
	TenantReps    []TenantRep    `json:"tenant_reps,omitempty"`
	AIConfig      AIConfig       `json:"ai_config"`
	ChannelConfig ChannelConfig  `json:"channel_config"`

	// Reserved for the reply pipeline; initialized false/empty.
	HandOffToHuman bool   `json:"hand_off_to_human"`
	HandOffReason  string `json:"hand_off_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the status is a terminal state.
func (s ConversationStatus) Terminal() bool {
	return s == StatusInitialMessageSent || s == StatusFailed
}
