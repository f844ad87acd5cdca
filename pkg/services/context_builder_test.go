package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/models"
)

func testPayload(channel models.Channel) models.FrontendPayload {
	return models.FrontendPayload{
		CompanyData: models.CompanyData{CompanyID: "acme", ProjectID: "launch"},
		RecipientData: models.RecipientData{
			RecipientTel:   "+4915112345678",
			RecipientEmail: "jo@example.com",
			CommsConsent:   true,
		},
		RequestData: models.RequestData{
			RequestID:               "req-42",
			ChannelMethod:           channel,
			InitialRequestTimestamp: "2026-08-24T09:59:00Z",
		},
	}
}

func testTenantConfig() *models.TenantConfig {
	return &models.TenantConfig{
		CompanyID:       "acme",
		ProjectID:       "launch",
		ProjectStatus:   models.ProjectStatusActive,
		AllowedChannels: []string{"whatsapp", "email"},
		ChannelConfigs: map[models.Channel]models.ChannelConfig{
			models.ChannelWhatsApp: {CredentialsRef: "acme-twilio", SenderID: "+4930000000"},
			models.ChannelEmail:    {CredentialsRef: "acme-sendgrid", SenderID: "hello@acme.example"},
		},
		AIConfig: models.AIConfig{
			CredentialsRef: "acme-openai",
			AssistantIDs:   map[models.Channel]string{models.ChannelWhatsApp: "asst_1"},
		},
	}
}

func TestSanitizeRecipient(t *testing.T) {
	assert.Equal(t, "4915112345678", SanitizeRecipient("+4915112345678"))
	assert.Equal(t, "joexamplecom", SanitizeRecipient("jo@example.com"))
	assert.Equal(t, "", SanitizeRecipient("+-#@."))
	assert.Equal(t, "AbC123", SanitizeRecipient("AbC123"))
}

func TestConversationIDFormat(t *testing.T) {
	id := ConversationID(testPayload(models.ChannelWhatsApp))
	assert.Equal(t, "acme#launch#req-42#4915112345678", id)

	id = ConversationID(testPayload(models.ChannelEmail))
	assert.Equal(t, "acme#launch#req-42#joexamplecom", id)
}

func TestConversationIDDeterministic(t *testing.T) {
	payload := testPayload(models.ChannelWhatsApp)
	assert.Equal(t, ConversationID(payload), ConversationID(payload))
}

func TestBuildContextSnapshotsRequestedChannelOnly(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	cfg := testTenantConfig()

	ctx, err := BuildContext(testPayload(models.ChannelWhatsApp), cfg, "herald/abc", now)
	require.NoError(t, err)

	assert.Equal(t, "herald/abc", ctx.Metadata.RouterVersion)
	assert.Equal(t, "2026-08-24T10:00:00Z", ctx.Metadata.CreatedAt)
	assert.Equal(t, "acme-twilio", ctx.CompanyDataPayload.ChannelConfig.CredentialsRef)
	assert.Equal(t, "+4930000000", ctx.CompanyDataPayload.ChannelConfig.SenderID)
	assert.Equal(t, cfg.AllowedChannels, ctx.CompanyDataPayload.AllowedChannels)
	assert.Equal(t, "acme#launch#req-42#4915112345678", ctx.ConversationData.ConversationID)
	assert.Empty(t, ctx.ConversationData.ThreadID)
	assert.Empty(t, ctx.ConversationData.ProviderMessageID)
}

func TestBuildContextMissingChannelConfig(t *testing.T) {
	cfg := testTenantConfig()
	delete(cfg.ChannelConfigs, models.ChannelWhatsApp)

	_, err := BuildContext(testPayload(models.ChannelWhatsApp), cfg, "herald/abc", time.Now())
	assert.Error(t, err)
}

func TestBuildContextIsReproducible(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	cfg := testTenantConfig()
	payload := testPayload(models.ChannelWhatsApp)

	a, err := BuildContext(payload, cfg, "herald/abc", now)
	require.NoError(t, err)
	b, err := BuildContext(payload, cfg, "herald/abc", now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
