package models

// ProjectStatus is the lifecycle state of a tenant project.
type ProjectStatus string

// Project statuses.
const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusInactive ProjectStatus = "inactive"
)

// ChannelConfig is the per-channel block of a tenant configuration record.
// CredentialsRef points at the provider credential blob in the secret store;
// SenderID is the tenant's sender identity on that channel (phone number for
// WhatsApp/SMS, from-address for email).
type ChannelConfig struct {
	CredentialsRef string `json:"credentials_ref"`
	SenderID       string `json:"sender_id"`
}

// AIConfig is the tenant's LLM configuration: one assistant identifier per
// channel plus the reference to the LLM credential blob.
type AIConfig struct {
	CredentialsRef string             `json:"credentials_ref"`
	AssistantIDs   map[Channel]string `json:"assistant_ids"`
}

// AssistantFor returns the assistant identifier configured for the channel.
func (a AIConfig) AssistantFor(c Channel) (string, bool) {
	id, ok := a.AssistantIDs[c]
	return id, ok && id != ""
}

// TenantRep describes a human representative of the tenant, passed verbatim
// to the LLM for message personalization.
type TenantRep struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Tel   string `json:"tel,omitempty"`
}

// RateLimits carries optional per-tenant rate hints. The core records them on
// conversations for downstream tooling; it does not enforce them.
type RateLimits struct {
	MaxPerMinute int `json:"max_per_minute,omitempty"`
	MaxPerDay    int `json:"max_per_day,omitempty"`
}

// TenantConfig is a tenant+project configuration record, read-only to the
// core. Identity is (company_id, project_id).
type TenantConfig struct {
	CompanyID       string                    `json:"company_id"`
	ProjectID       string                    `json:"project_id"`
	ProjectStatus   ProjectStatus             `json:"project_status"`
	AllowedChannels []string                  `json:"allowed_channels"`
	ChannelConfigs  map[Channel]ChannelConfig `json:"channel_configs"`
	AIConfig        AIConfig                  `json:"ai_config"`
	TenantReps      []TenantRep               `json:"tenant_reps,omitempty"`
	RateLimits      *RateLimits               `json:"rate_limits,omitempty"`
}

// ChannelAllowed reports whether the channel is in the tenant's allow-list.
func (t *TenantConfig) ChannelAllowed(c Channel) bool {
	for _, allowed := range t.AllowedChannels {
		if allowed == string(c) {
			return true
		}
	}
	return false
}

// ChannelConfigFor returns the config block for the channel, if present.
func (t *TenantConfig) ChannelConfigFor(c Channel) (ChannelConfig, bool) {
	cc, ok := t.ChannelConfigs[c]
	return cc, ok && cc.CredentialsRef != ""
}
