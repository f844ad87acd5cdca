package processor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log/slog"

	"github.com/heraldhq/herald/pkg/alerting"
	"github.com/heraldhq/herald/pkg/llm"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/provider"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/secrets"
	"github.com/heraldhq/herald/pkg/state"
)

// fakeStateStore records calls and returns scripted results.
type fakeStateStore struct {
	mu             sync.Mutex
	createOutcome  state.CreateOutcome
	createErr      error
	created        []*models.ConversationRecord
	updateSendErr  error
	patches        []state.SendPatch
	statusUpdates  []models.ConversationStatus
	statusUpdErr   error
}

func (f *fakeStateStore) CreateInitial(_ context.Context, rec *models.ConversationRecord) (state.CreateOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, rec)
	return f.createOutcome, nil
}

func (f *fakeStateStore) UpdateAfterSend(_ context.Context, _ state.Key, patch state.SendPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateSendErr != nil {
		return f.updateSendErr
	}
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeStateStore) UpdateStatus(_ context.Context, _ state.Key, status models.ConversationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, status)
	return f.statusUpdErr
}

func (f *fakeStateStore) Get(_ context.Context, _ string) (*models.ConversationRecord, error) {
	return nil, state.ErrNotFound
}

// fakeRunner returns a scripted assistant-run result.
type fakeRunner struct {
	result *llm.RunResult
	err    error
	runs   int
}

func (f *fakeRunner) Run(_ context.Context, _ llm.RunInput) (*llm.RunResult, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeSender records template sends.
type fakeSender struct {
	mu    sync.Mutex
	sends []provider.SendInput
	id    string
	err   error
}

func (f *fakeSender) SendTemplate(_ context.Context, input provider.SendInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sends = append(f.sends, input)
	return f.id, nil
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fixture struct {
	store  *fakeStateStore
	runner *fakeRunner
	sender *fakeSender
	proc   *Processor
}

func newFixture() *fixture {
	store := &fakeStateStore{createOutcome: state.Inserted}
	runner := &fakeRunner{result: &llm.RunResult{
		ThreadID:     "thread_1",
		Variables:    map[string]string{"1": "Hi Jo"},
		ReplyText:    `{"1":"Hi Jo"}`,
		InputTokens:  120,
		OutputTokens: 40,
		TotalTokens:  160,
		Elapsed:      3 * time.Second,
	}}
	sender := &fakeSender{id: "SM123"}

	sec := secrets.MapStore{
		"acme-openai": []byte(`{"ai_api_key":"sk-test"}`),
		"acme-twilio": []byte(`{"twilio_account_sid":"AC1","twilio_auth_token":"tok","twilio_template_sid":"HX1"}`),
	}
	registry := provider.Registry{
		models.ChannelWhatsApp: func(_ models.ChannelConfig, _ []byte) (provider.Sender, error) {
			return sender, nil
		},
	}
	factory := func(_ string) llm.Runner { return runner }

	return &fixture{
		store:  store,
		runner: runner,
		sender: sender,
		proc:   New(store, sec, factory, registry, nil, "herald/test"),
	}
}

func testMessage(t *testing.T, receiveCount int) *queue.Message {
	t.Helper()
	ctxObj := &models.ContextObject{
		Metadata: models.Metadata{RouterVersion: "herald/router", CreatedAt: "2026-08-24T10:00:00Z"},
		FrontendPayload: models.FrontendPayload{
			CompanyData: models.CompanyData{CompanyID: "acme", ProjectID: "launch"},
			RecipientData: models.RecipientData{
				RecipientTel: "+4915112345678",
				CommsConsent: true,
			},
			RequestData: models.RequestData{
				RequestID:               "req-42",
				ChannelMethod:           models.ChannelWhatsApp,
				InitialRequestTimestamp: "2026-08-24T09:59:00Z",
			},
		},
		CompanyDataPayload: models.CompanyDataPayload{
			AllowedChannels: []string{"whatsapp"},
			ChannelConfig:   models.ChannelConfig{CredentialsRef: "acme-twilio", SenderID: "+4930000000"},
			AIConfig: models.AIConfig{
				CredentialsRef: "acme-openai",
				AssistantIDs:   map[models.Channel]string{models.ChannelWhatsApp: "asst_1"},
			},
		},
		ConversationData: models.ConversationData{ConversationID: "acme#launch#req-42#4915112345678"},
	}
	body, err := ctxObj.Marshal()
	require.NoError(t, err)
	return &queue.Message{
		ID:            uuid.New(),
		Queue:         "herald-whatsapp",
		Body:          body,
		ReceiptHandle: uuid.New(),
		ReceiveCount:  receiveCount,
		EnqueuedAt:    time.Now(),
	}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture()

	outcome := f.proc.Process(context.Background(), testMessage(t, 1))
	assert.True(t, outcome.Success)

	require.Len(t, f.store.created, 1)
	rec := f.store.created[0]
	assert.Equal(t, "+4915112345678", rec.PrimaryChannel)
	assert.Equal(t, models.StatusProcessing, rec.ConversationStatus)
	assert.Equal(t, 0, rec.TaskComplete)
	assert.Equal(t, "herald/test", rec.ProcessorVersion)
	assert.Equal(t, "herald/router", rec.RouterVersion)

	require.Equal(t, 1, f.sender.sendCount())
	assert.Equal(t, "+4915112345678", f.sender.sends[0].Recipient)
	assert.Equal(t, map[string]string{"1": "Hi Jo"}, f.sender.sends[0].Variables)

	require.Len(t, f.store.patches, 1)
	patch := f.store.patches[0]
	assert.Equal(t, "thread_1", patch.ThreadID)
	assert.Equal(t, "SM123", patch.ProviderMessageID)
	assert.Equal(t, "assistant", patch.Message.Role)
	assert.Equal(t, 160, patch.Message.TotalTokens)
	assert.Empty(t, f.store.statusUpdates)
}

func TestProcessDuplicateSkipsSend(t *testing.T) {
	for _, receiveCount := range []int{1, 3} {
		f := newFixture()
		f.store.createOutcome = state.AlreadyExists

		outcome := f.proc.Process(context.Background(), testMessage(t, receiveCount))

		assert.True(t, outcome.Success, "duplicates settle as success so the queue deletes them")
		assert.Zero(t, f.sender.sendCount(), "a duplicate must never reach the provider")
		assert.Zero(t, f.runner.runs)
		assert.Empty(t, f.store.patches)
	}
}

func TestProcessSecretFailureFailsMessage(t *testing.T) {
	f := newFixture()
	f.proc = New(f.store, secrets.MapStore{}, func(_ string) llm.Runner { return f.runner },
		provider.Registry{}, nil, "herald/test")

	outcome := f.proc.Process(context.Background(), testMessage(t, 1))

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Reason, "credentials")
	assert.Equal(t, []models.ConversationStatus{models.StatusFailed}, f.store.statusUpdates)
	assert.Zero(t, f.sender.sendCount())
}

func TestProcessLLMFailureFailsMessage(t *testing.T) {
	f := newFixture()
	f.runner.err = llm.ErrRunTimeout

	outcome := f.proc.Process(context.Background(), testMessage(t, 1))

	assert.False(t, outcome.Success)
	assert.Equal(t, []models.ConversationStatus{models.StatusFailed}, f.store.statusUpdates)
	assert.Zero(t, f.sender.sendCount())
	assert.Empty(t, f.store.patches)
}

func TestProcessProviderFailureFailsMessage(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("twilio 500")

	outcome := f.proc.Process(context.Background(), testMessage(t, 1))

	assert.False(t, outcome.Success)
	assert.Equal(t, []models.ConversationStatus{models.StatusFailed}, f.store.statusUpdates)
	assert.Empty(t, f.store.patches)
}

func TestProcessFinalUpdateFailureIsCriticalButSucceeds(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: alerting.ReplaceLevelName,
	})))
	defer slog.SetDefault(prev)

	f := newFixture()
	f.store.updateSendErr = errors.New("conditional check failed")

	outcome := f.proc.Process(context.Background(), testMessage(t, 1))

	assert.True(t, outcome.Success, "the provider message went out; redelivery would duplicate it")
	assert.Equal(t, 1, f.sender.sendCount())
	assert.Empty(t, f.store.statusUpdates, "no failed transition after a successful send")

	logs := buf.String()
	assert.Equal(t, 1, strings.Count(logs, alerting.CriticalUpdateFailedMarker))
	assert.Contains(t, logs, `"CRITICAL"`)
	assert.Contains(t, logs, "SM123")
}

func TestProcessInvalidBodyFails(t *testing.T) {
	f := newFixture()

	for _, body := range [][]byte{
		[]byte("{not json"),
		[]byte(`{"conversation_data":{"conversation_id":""}}`),
	} {
		outcome := f.proc.Process(context.Background(), &queue.Message{
			ID: uuid.New(), Body: body, ReceiptHandle: uuid.New(), ReceiveCount: 1,
		})
		assert.False(t, outcome.Success)
	}
	assert.Empty(t, f.store.created)
}

func TestProcessCreateErrorFailsWithoutStatusWrite(t *testing.T) {
	f := newFixture()
	f.store.createErr = errors.New("connection reset")

	outcome := f.proc.Process(context.Background(), testMessage(t, 1))

	assert.False(t, outcome.Success)
	assert.Empty(t, f.store.statusUpdates, "no record exists yet to mark failed")
	assert.Zero(t, f.sender.sendCount())
}
