package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

// BuildContext assembles the context object from the validated payload and
// the tenant configuration. Pure: the same payload and config always produce
// the same conversation id, and the only non-determinism is the creation
// timestamp. The channel config snapshot is taken for the requested channel
// only.
func BuildContext(payload models.FrontendPayload, cfg *models.TenantConfig, routerVersion string, now time.Time) (*models.ContextObject, error) {
	channel := payload.RequestData.ChannelMethod
	channelCfg, ok := cfg.ChannelConfigFor(channel)
	if !ok {
		return nil, fmt.Errorf("no channel config for %q", channel)
	}

	ctx := &models.ContextObject{
		Metadata: models.Metadata{
			RouterVersion: routerVersion,
			CreatedAt:     now.UTC().Format(time.RFC3339),
		},
		FrontendPayload: payload,
		CompanyDataPayload: models.CompanyDataPayload{
			AllowedChannels: cfg.AllowedChannels,
			ChannelConfig:   channelCfg,
			AIConfig:        cfg.AIConfig,
			TenantReps:      cfg.TenantReps,
			RateLimits:      cfg.RateLimits,
		},
	}
	ctx.ConversationData.ConversationID = ConversationID(payload)
	return ctx, nil
}

// ConversationID derives the deterministic conversation identifier:
// {company_id}#{project_id}#{request_id}#{sanitized_recipient}.
func ConversationID(payload models.FrontendPayload) string {
	recipient := payload.RecipientData.RecipientEmail
	if payload.RequestData.ChannelMethod.RequiresTel() {
		recipient = payload.RecipientData.RecipientTel
	}
	return strings.Join([]string{
		payload.CompanyData.CompanyID,
		payload.CompanyData.ProjectID,
		payload.RequestData.RequestID,
		SanitizeRecipient(recipient),
	}, "#")
}

// SanitizeRecipient strips every non-alphanumeric character from the
// recipient identifier (the "+" of an E.164 number, the "@" and dots of an
// email address).
func SanitizeRecipient(recipient string) string {
	var sb strings.Builder
	sb.Grow(len(recipient))
	for _, r := range recipient {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
