package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/test/util"
)

func testRecord(conversationID string) *models.ConversationRecord {
	return &models.ConversationRecord{
		PrimaryChannel:     "+4915112345678",
		ConversationID:     conversationID,
		CompanyID:          "acme",
		ProjectID:          "launch",
		ChannelMethod:      models.ChannelWhatsApp,
		ConversationStatus: models.StatusProcessing,
		TaskComplete:       0,
		RequestID:          "req-42",
		RouterVersion:      "herald/router",
		ProcessorVersion:   "herald/proc",
		ProjectData:        map[string]any{"campaign": "summer"},
		TenantReps:         []models.TenantRep{{Name: "Sam"}},
		AIConfig: models.AIConfig{
			CredentialsRef: "acme-openai",
			AssistantIDs:   map[models.Channel]string{models.ChannelWhatsApp: "asst_1"},
		},
		ChannelConfig: models.ChannelConfig{CredentialsRef: "acme-twilio", SenderID: "+4930000000"},
	}
}

func TestCreateInitialIsConditional(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)
	ctx := context.Background()

	outcome, err := store.CreateInitial(ctx, testRecord("acme#launch#req-42#4915112345678"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	// Same conversation_id again, even with a different primary channel,
	// must be rejected by the uniqueness predicate.
	dup := testRecord("acme#launch#req-42#4915112345678")
	dup.PrimaryChannel = "+4900000000000"
	outcome, err = store.CreateInitial(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, AlreadyExists, outcome)

	rec, err := store.Get(ctx, "acme#launch#req-42#4915112345678")
	require.NoError(t, err)
	assert.Equal(t, "+4915112345678", rec.PrimaryChannel, "the original row is untouched")
	assert.Equal(t, models.StatusProcessing, rec.ConversationStatus)
	assert.Empty(t, rec.Messages)
	assert.False(t, rec.HandOffToHuman)
}

func TestUpdateAfterSend(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)
	ctx := context.Background()

	rec := testRecord("acme#launch#req-43#4915112345678")
	_, err := store.CreateInitial(ctx, rec)
	require.NoError(t, err)

	key := Key{PrimaryChannel: rec.PrimaryChannel, ConversationID: rec.ConversationID}
	patch := SendPatch{
		ThreadID: "thread_1",
		Message: models.MessageEntry{
			Role:             "assistant",
			Content:          `{"1":"Hi Jo"}`,
			Timestamp:        "2026-08-24T10:00:05Z",
			InputTokens:      120,
			OutputTokens:     40,
			TotalTokens:      160,
			ProcessingTimeMS: 3000,
		},
		ProviderMessageID: "SM123",
		ProcessingTimeMS:  4200,
	}
	require.NoError(t, store.UpdateAfterSend(ctx, key, patch))

	got, err := store.Get(ctx, rec.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInitialMessageSent, got.ConversationStatus)
	assert.Equal(t, 1, got.TaskComplete)
	assert.Equal(t, "thread_1", got.ThreadID)
	assert.Equal(t, "SM123", got.ProviderMessageID)
	assert.Equal(t, int64(4200), got.ProcessingTimeMS)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "assistant", got.Messages[0].Role)
	assert.Equal(t, 160, got.Messages[0].TotalTokens)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestUpdateAfterSendAppendsToHistory(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)
	ctx := context.Background()

	rec := testRecord("acme#launch#req-44#4915112345678")
	_, err := store.CreateInitial(ctx, rec)
	require.NoError(t, err)

	key := Key{PrimaryChannel: rec.PrimaryChannel, ConversationID: rec.ConversationID}
	require.NoError(t, store.UpdateAfterSend(ctx, key, SendPatch{
		Message: models.MessageEntry{Role: "assistant", Content: "first"},
	}))
	require.NoError(t, store.UpdateAfterSend(ctx, key, SendPatch{
		Message: models.MessageEntry{Role: "assistant", Content: "second"},
	}))

	got, err := store.Get(ctx, rec.ConversationID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, "second", got.Messages[1].Content)
}

func TestUpdateStatus(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)
	ctx := context.Background()

	rec := testRecord("acme#launch#req-45#4915112345678")
	_, err := store.CreateInitial(ctx, rec)
	require.NoError(t, err)

	key := Key{PrimaryChannel: rec.PrimaryChannel, ConversationID: rec.ConversationID}
	require.NoError(t, store.UpdateStatus(ctx, key, models.StatusFailed))

	got, err := store.Get(ctx, rec.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.ConversationStatus)
	assert.Equal(t, 0, got.TaskComplete)
}

func TestUpdateMissingRecord(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)
	ctx := context.Background()

	key := Key{PrimaryChannel: "+490", ConversationID: "nope"}
	assert.True(t, errors.Is(store.UpdateStatus(ctx, key, models.StatusFailed), ErrNotFound))
	assert.True(t, errors.Is(store.UpdateAfterSend(ctx, key, SendPatch{}), ErrNotFound))
}

func TestGetNotFound(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshotsRoundTrip(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	store := NewPGStore(pool)
	ctx := context.Background()

	rec := testRecord("acme#launch#req-46#4915112345678")
	_, err := store.CreateInitial(ctx, rec)
	require.NoError(t, err)

	got, err := store.Get(ctx, rec.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, rec.ProjectData, got.ProjectData)
	assert.Equal(t, rec.TenantReps, got.TenantReps)
	assert.Equal(t, rec.AIConfig, got.AIConfig)
	assert.Equal(t, rec.ChannelConfig, got.ChannelConfig)
}
