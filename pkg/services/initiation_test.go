package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/tenant"
)

// fakeTenantStore serves one config record, or an error.
type fakeTenantStore struct {
	cfg *models.TenantConfig
	err error
}

func (f *fakeTenantStore) Get(_ context.Context, companyID, projectID string) (*models.TenantConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.cfg == nil || f.cfg.CompanyID != companyID || f.cfg.ProjectID != projectID {
		return nil, tenant.ErrNotFound
	}
	return f.cfg, nil
}

// fakeQueue records enqueued messages.
type fakeQueue struct {
	queue.Queue
	enqueued []fakeEnqueue
	err      error
}

type fakeEnqueue struct {
	queue string
	body  []byte
	attrs queue.Attributes
}

func (f *fakeQueue) Enqueue(_ context.Context, q string, body []byte, attrs queue.Attributes) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.enqueued = append(f.enqueued, fakeEnqueue{queue: q, body: body, attrs: attrs})
	return uuid.New(), nil
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Names: map[models.Channel]string{
			models.ChannelWhatsApp: "herald-whatsapp",
			models.ChannelEmail:    "herald-email",
		},
	}
}

func newTestService(tenants tenant.Store, q queue.Queue) *InitiationService {
	return NewInitiationService(tenants, q, testQueueConfig(), "herald/test")
}

func TestInitiateHappyPath(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(&fakeTenantStore{cfg: testTenantConfig()}, q)

	result, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelWhatsApp))
	require.Nil(t, appErr)

	assert.Equal(t, "req-42", result.RequestID)
	assert.Equal(t, "acme#launch#req-42#4915112345678", result.ConversationID)

	require.Len(t, q.enqueued, 1)
	assert.Equal(t, "herald-whatsapp", q.enqueued[0].queue)
	assert.Equal(t, "acme", q.enqueued[0].attrs.CompanyID)
	assert.Equal(t, "whatsapp", q.enqueued[0].attrs.ChannelMethod)

	ctxObj, err := models.UnmarshalContextObject(q.enqueued[0].body)
	require.NoError(t, err)
	assert.Equal(t, result.ConversationID, ctxObj.ConversationData.ConversationID)
	assert.Equal(t, "herald/test", ctxObj.Metadata.RouterVersion)
}

func TestInitiateDuplicateRequestIDsPassThrough(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(&fakeTenantStore{cfg: testTenantConfig()}, q)
	payload := testPayload(models.ChannelWhatsApp)

	_, appErr := svc.Initiate(context.Background(), payload)
	require.Nil(t, appErr)
	_, appErr = svc.Initiate(context.Background(), payload)
	require.Nil(t, appErr)

	assert.Len(t, q.enqueued, 2, "the router must not deduplicate by request_id")
}

func TestInitiateValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.FrontendPayload)
		wantCode string
	}{
		{
			name:     "missing company id",
			mutate:   func(p *models.FrontendPayload) { p.CompanyData.CompanyID = "" },
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "missing request id",
			mutate:   func(p *models.FrontendPayload) { p.RequestData.RequestID = "" },
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "bad timestamp",
			mutate:   func(p *models.FrontendPayload) { p.RequestData.InitialRequestTimestamp = "yesterday" },
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "unknown channel",
			mutate:   func(p *models.FrontendPayload) { p.RequestData.ChannelMethod = "pager" },
			wantCode: CodeInvalidChannel,
		},
		{
			name:     "missing tel for whatsapp",
			mutate:   func(p *models.FrontendPayload) { p.RecipientData.RecipientTel = "" },
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "tel not E.164",
			mutate:   func(p *models.FrontendPayload) { p.RecipientData.RecipientTel = "0151 1234567" },
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "consent missing",
			mutate:   func(p *models.FrontendPayload) { p.RecipientData.CommsConsent = false },
			wantCode: CodeConsentRequired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &fakeQueue{}
			svc := newTestService(&fakeTenantStore{cfg: testTenantConfig()}, q)

			payload := testPayload(models.ChannelWhatsApp)
			tc.mutate(&payload)

			_, appErr := svc.Initiate(context.Background(), payload)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.wantCode, appErr.Code)
			assert.Empty(t, q.enqueued, "validation failures must not enqueue")
		})
	}
}

func TestInitiateEmailRequiresValidEmail(t *testing.T) {
	svc := newTestService(&fakeTenantStore{cfg: testTenantConfig()}, &fakeQueue{})

	payload := testPayload(models.ChannelEmail)
	payload.RecipientData.RecipientEmail = "not-an-email"

	_, appErr := svc.Initiate(context.Background(), payload)
	require.NotNil(t, appErr)
	assert.Equal(t, CodeInvalidRequest, appErr.Code)
}

func TestInitiateConfigErrors(t *testing.T) {
	t.Run("company not found", func(t *testing.T) {
		svc := newTestService(&fakeTenantStore{}, &fakeQueue{})
		_, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelWhatsApp))
		require.NotNil(t, appErr)
		assert.Equal(t, CodeCompanyNotFound, appErr.Code)
		assert.Equal(t, 404, appErr.Status)
	})

	t.Run("project inactive", func(t *testing.T) {
		cfg := testTenantConfig()
		cfg.ProjectStatus = models.ProjectStatusInactive
		svc := newTestService(&fakeTenantStore{cfg: cfg}, &fakeQueue{})
		_, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelWhatsApp))
		require.NotNil(t, appErr)
		assert.Equal(t, CodeProjectInactive, appErr.Code)
		assert.Equal(t, 403, appErr.Status)
	})

	t.Run("channel not allowed", func(t *testing.T) {
		cfg := testTenantConfig()
		cfg.AllowedChannels = []string{"email"}
		svc := newTestService(&fakeTenantStore{cfg: cfg}, &fakeQueue{})
		_, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelWhatsApp))
		require.NotNil(t, appErr)
		assert.Equal(t, CodeChannelNotAllowed, appErr.Code)
	})

	t.Run("channel config missing", func(t *testing.T) {
		cfg := testTenantConfig()
		cfg.ChannelConfigs[models.ChannelWhatsApp] = models.ChannelConfig{}
		svc := newTestService(&fakeTenantStore{cfg: cfg}, &fakeQueue{})
		_, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelWhatsApp))
		require.NotNil(t, appErr)
		assert.Equal(t, CodeConfigurationError, appErr.Code)
	})

	t.Run("no queue for channel", func(t *testing.T) {
		cfg := testTenantConfig()
		cfg.AllowedChannels = append(cfg.AllowedChannels, "sms")
		cfg.ChannelConfigs[models.ChannelSMS] = models.ChannelConfig{CredentialsRef: "acme-twilio", SenderID: "+4930000000"}
		svc := newTestService(&fakeTenantStore{cfg: cfg}, &fakeQueue{})
		_, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelSMS))
		require.NotNil(t, appErr)
		assert.Equal(t, CodeConfigurationError, appErr.Code)
	})

	t.Run("enqueue failure", func(t *testing.T) {
		svc := newTestService(&fakeTenantStore{cfg: testTenantConfig()},
			&fakeQueue{err: errors.New("connection refused")})
		_, appErr := svc.Initiate(context.Background(), testPayload(models.ChannelWhatsApp))
		require.NotNil(t, appErr)
		assert.Equal(t, CodeQueueSendError, appErr.Code)
		assert.Equal(t, 500, appErr.Status)
	})
}

func TestValidatePayloadAcceptsRFC3339WithOffset(t *testing.T) {
	payload := testPayload(models.ChannelWhatsApp)
	payload.RequestData.InitialRequestTimestamp = time.Now().Format(time.RFC3339)
	assert.Nil(t, ValidatePayload(payload))
}
