// Package processor implements the channel-side pipeline: decode, idempotent
// record creation, credential retrieval, assistant run, provider send, and
// the final state update. One invocation handles one queue message; the
// worker owns claim, heartbeat, and settlement.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heraldhq/herald/pkg/alerting"
	"github.com/heraldhq/herald/pkg/llm"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/provider"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/secrets"
	"github.com/heraldhq/herald/pkg/state"
)

// Processor drives one context object through the send pipeline.
type Processor struct {
	state      state.Store
	secrets    secrets.Store
	llmFactory llm.Factory
	providers  provider.Registry
	notifier   *alerting.Notifier
	version    string
	logger     *slog.Logger
}

// New creates a channel processor.
func New(st state.Store, sec secrets.Store, factory llm.Factory, providers provider.Registry, notifier *alerting.Notifier, version string) *Processor {
	return &Processor{
		state:      st,
		secrets:    sec,
		llmFactory: factory,
		providers:  providers,
		notifier:   notifier,
		version:    version,
		logger:     slog.Default().With("component", "channel-processor"),
	}
}

// Process runs the pipeline for one delivered message. Success means the
// queue deletes the message; failure means redelivery. A message whose
// conversation already exists is a duplicate and always succeeds without a
// second send.
func (p *Processor) Process(ctx context.Context, msg *queue.Message) queue.Outcome {
	start := time.Now()

	ctxObj, err := decodeContext(msg.Body)
	if err != nil {
		// Malformed bodies never become valid on redelivery, but the failure
		// path is the only road to the dead-letter queue, where an operator
		// can inspect them.
		p.logger.Error("Discarding structurally invalid message",
			"message_id", msg.ID, "error", err)
		return queue.Outcome{Reason: "invalid context object: " + err.Error()}
	}

	key := state.Key{
		PrimaryChannel: ctxObj.PrimaryChannel(),
		ConversationID: ctxObj.ConversationData.ConversationID,
	}
	channel := ctxObj.Channel()
	log := p.logger.With("conversation_id", key.ConversationID, "channel_method", channel)

	outcome, err := p.state.CreateInitial(ctx, p.initialRecord(ctxObj, key))
	if err != nil {
		log.Error("Conditional create failed", "error", err)
		return queue.Outcome{Reason: "state create failed: " + err.Error()}
	}
	if outcome == state.AlreadyExists {
		// The one mechanism bounding provider sends to at most one per
		// conversation. Receive count 1 means the client submitted the same
		// request twice; more than 1 means the queue redelivered after a
		// partial failure.
		if msg.ReceiveCount == 1 {
			log.Info("Duplicate client submission, skipping")
		} else {
			log.Info("Redelivery of already-created conversation, skipping",
				"receive_count", msg.ReceiveCount)
		}
		return queue.Outcome{Success: true}
	}
	log.Info("Conversation record created")

	llmSecret, err := p.secrets.Get(ctx, ctxObj.CompanyDataPayload.AIConfig.CredentialsRef)
	if err != nil {
		return p.fail(ctx, log, key, "fetching LLM credentials: "+err.Error())
	}
	providerSecret, err := p.secrets.Get(ctx, ctxObj.CompanyDataPayload.ChannelConfig.CredentialsRef)
	if err != nil {
		return p.fail(ctx, log, key, "fetching provider credentials: "+err.Error())
	}

	result, err := p.runAssistant(ctx, ctxObj, channel, llmSecret, msg.Body)
	if err != nil {
		return p.fail(ctx, log, key, "assistant run: "+err.Error())
	}
	log.Info("Assistant run completed", "thread_id", result.ThreadID,
		"total_tokens", result.TotalTokens, "elapsed", result.Elapsed)

	sender, err := p.providers.Build(channel, ctxObj.CompanyDataPayload.ChannelConfig, providerSecret)
	if err != nil {
		return p.fail(ctx, log, key, "building provider client: "+err.Error())
	}
	providerMessageID, err := sender.SendTemplate(ctx, provider.SendInput{
		Recipient: key.PrimaryChannel,
		Variables: result.Variables,
	})
	if err != nil {
		return p.fail(ctx, log, key, "provider send: "+err.Error())
	}
	log.Info("Provider message sent", "provider_message_id", providerMessageID)

	processingTime := time.Since(start).Milliseconds()
	patch := state.SendPatch{
		ThreadID: result.ThreadID,
		Message: models.MessageEntry{
			Role:             "assistant",
			Content:          result.ReplyText,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			InputTokens:      result.InputTokens,
			OutputTokens:     result.OutputTokens,
			TotalTokens:      result.TotalTokens,
			ProcessingTimeMS: result.Elapsed.Milliseconds(),
		},
		ProviderMessageID: providerMessageID,
		ProcessingTimeMS:  processingTime,
	}

	// The handler context may expire right after a slow send; the final
	// update must still be attempted.
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := p.state.UpdateAfterSend(updateCtx, key, patch); err != nil {
		// The provider message already went out. Redelivering would send it
		// again, so the message is settled as success and the inconsistency
		// is escalated to an operator.
		alerting.EmitCritical(ctx, p.notifier, alerting.CriticalEvent{
			ConversationID:    key.ConversationID,
			PrimaryChannel:    key.PrimaryChannel,
			ProviderMessageID: providerMessageID,
			ThreadID:          result.ThreadID,
			ChannelMethod:     string(channel),
			CompanyID:         ctxObj.FrontendPayload.CompanyData.CompanyID,
			ProjectID:         ctxObj.FrontendPayload.CompanyData.ProjectID,
			ProcessingTimeMS:  processingTime,
			UpdateError:       err,
		})
		return queue.Outcome{Success: true}
	}

	log.Info("Conversation completed", "processing_time_ms", processingTime)
	return queue.Outcome{Success: true}
}

// runAssistant resolves the assistant for the channel and executes the run
// with the serialized context object as the opening user message.
func (p *Processor) runAssistant(ctx context.Context, ctxObj *models.ContextObject, channel models.Channel, llmSecret, body []byte) (*llm.RunResult, error) {
	creds, err := secrets.DecodeLLM(llmSecret)
	if err != nil {
		return nil, err
	}
	assistantID, ok := ctxObj.CompanyDataPayload.AIConfig.AssistantFor(channel)
	if !ok {
		return nil, fmt.Errorf("no assistant configured for channel %q", channel)
	}
	runner := p.llmFactory(creds.AIAPIKey)
	return runner.Run(ctx, llm.RunInput{
		AssistantID: assistantID,
		Prompt:      string(body),
	})
}

// fail records the terminal failed status (best-effort) and returns a
// failure outcome so the queue redelivers the message.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, key state.Key, reason string) queue.Outcome {
	log.Error("Pipeline step failed", "reason", reason)

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.state.UpdateStatus(statusCtx, key, models.StatusFailed); err != nil {
		log.Error("Failed to record failed status", "error", err)
	}
	return queue.Outcome{Reason: reason}
}

// initialRecord builds the row for the conditional create: processing
// status, empty history, full config snapshots.
func (p *Processor) initialRecord(ctxObj *models.ContextObject, key state.Key) *models.ConversationRecord {
	return &models.ConversationRecord{
		PrimaryChannel:     key.PrimaryChannel,
		ConversationID:     key.ConversationID,
		CompanyID:          ctxObj.FrontendPayload.CompanyData.CompanyID,
		ProjectID:          ctxObj.FrontendPayload.CompanyData.ProjectID,
		ChannelMethod:      ctxObj.Channel(),
		ConversationStatus: models.StatusProcessing,
		TaskComplete:       0,
		RequestID:          ctxObj.FrontendPayload.RequestData.RequestID,
		RouterVersion:      ctxObj.Metadata.RouterVersion,
		ProcessorVersion:   p.version,
		ProjectData:        ctxObj.FrontendPayload.ProjectData,
		TenantReps:         ctxObj.CompanyDataPayload.TenantReps,
		AIConfig:           ctxObj.CompanyDataPayload.AIConfig,
		ChannelConfig:      ctxObj.CompanyDataPayload.ChannelConfig,
	}
}

// decodeContext parses and structurally validates a queue message body.
func decodeContext(body []byte) (*models.ContextObject, error) {
	ctxObj, err := models.UnmarshalContextObject(body)
	if err != nil {
		return nil, err
	}
	if ctxObj.ConversationData.ConversationID == "" {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if !ctxObj.Channel().Valid() {
		return nil, fmt.Errorf("invalid channel_method %q", ctxObj.Channel())
	}
	if ctxObj.PrimaryChannel() == "" {
		return nil, fmt.Errorf("missing recipient identifier")
	}
	return ctxObj, nil
}
