// Package services implements the ingress-side orchestration: request
// validation, tenant configuration checks, context assembly, and the queue
// write. It never touches the state store, the secret store, the LLM, or the
// provider; those belong to the processor.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/tenant"
)

var validate = validator.New()

// InitiationResult is the success payload returned to the client.
type InitiationResult struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
}

// InitiationService is the ingress router: one config read and one queue
// write per successful call, client response before any downstream work.
type InitiationService struct {
	tenants       tenant.Store
	queue         queue.Queue
	queueCfg      config.QueueConfig
	routerVersion string
	logger        *slog.Logger
}

// NewInitiationService creates the ingress router service.
func NewInitiationService(tenants tenant.Store, q queue.Queue, queueCfg config.QueueConfig, routerVersion string) *InitiationService {
	return &InitiationService{
		tenants:       tenants,
		queue:         q,
		queueCfg:      queueCfg,
		routerVersion: routerVersion,
		logger:        slog.Default().With("component", "initiation-service"),
	}
}

// Initiate validates the payload, loads tenant configuration, builds the
// context object, and enqueues it on the channel's queue. Duplicate
// request_ids pass through deliberately; deduplication happens at the
// processor's conditional create.
func (s *InitiationService) Initiate(ctx context.Context, payload models.FrontendPayload) (*InitiationResult, *AppError) {
	if appErr := ValidatePayload(payload); appErr != nil {
		return nil, appErr
	}

	companyID := payload.CompanyData.CompanyID
	projectID := payload.CompanyData.ProjectID
	channel := payload.RequestData.ChannelMethod

	cfg, err := s.tenants.Get(ctx, companyID, projectID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, NewCompanyNotFound(companyID, projectID)
		}
		s.logger.Error("Tenant config lookup failed",
			"company_id", companyID, "project_id", projectID, "error", err)
		return nil, NewConfigurationError("tenant configuration unavailable")
	}

	if cfg.ProjectStatus != models.ProjectStatusActive {
		return nil, NewProjectInactive(projectID)
	}
	if !cfg.ChannelAllowed(channel) {
		return nil, NewChannelNotAllowed(string(channel))
	}
	if _, ok := cfg.ChannelConfigFor(channel); !ok {
		return nil, NewConfigurationError("channel configuration missing for " + string(channel))
	}

	ctxObj, err := BuildContext(payload, cfg, s.routerVersion, time.Now())
	if err != nil {
		return nil, NewConfigurationError(err.Error())
	}

	queueName, ok := s.queueCfg.QueueFor(channel)
	if !ok {
		return nil, NewConfigurationError("no queue configured for channel " + string(channel))
	}

	body, err := ctxObj.Marshal()
	if err != nil {
		return nil, NewConfigurationError("context serialization failed")
	}

	msgID, err := s.queue.Enqueue(ctx, queueName, body, queue.Attributes{
		CompanyID:     companyID,
		ProjectID:     projectID,
		ChannelMethod: string(channel),
	})
	if err != nil {
		s.logger.Error("Enqueue failed", "queue", queueName,
			"conversation_id", ctxObj.ConversationData.ConversationID, "error", err)
		return nil, NewQueueSendError(err)
	}

	s.logger.Info("Conversation request enqueued",
		"conversation_id", ctxObj.ConversationData.ConversationID,
		"queue", queueName,
		"message_id", msgID,
		"channel_method", channel)

	return &InitiationResult{
		RequestID:      payload.RequestData.RequestID,
		ConversationID: ctxObj.ConversationData.ConversationID,
	}, nil
}

// ValidatePayload enforces the structural and consent rules on a decoded
// request body.
func ValidatePayload(payload models.FrontendPayload) *AppError {
	if payload.CompanyData.CompanyID == "" || payload.CompanyData.ProjectID == "" {
		return NewInvalidRequest("company_data requires company_id and project_id")
	}
	if payload.RequestData.RequestID == "" {
		return NewInvalidRequest("request_data requires a non-empty request_id")
	}
	if payload.RequestData.InitialRequestTimestamp == "" {
		return NewInvalidRequest("request_data requires initial_request_timestamp")
	}
	if _, err := time.Parse(time.RFC3339, payload.RequestData.InitialRequestTimestamp); err != nil {
		return NewInvalidRequest("initial_request_timestamp must be RFC 3339")
	}

	channel := payload.RequestData.ChannelMethod
	if !channel.Valid() {
		return NewInvalidChannel(string(channel))
	}

	if channel.RequiresTel() {
		if payload.RecipientData.RecipientTel == "" {
			return NewInvalidRequest("recipient_data requires recipient_tel for channel " + string(channel))
		}
		if err := validate.Var(payload.RecipientData.RecipientTel, "e164"); err != nil {
			return NewInvalidRequest("recipient_tel must be an international E.164 number")
		}
	} else {
		if payload.RecipientData.RecipientEmail == "" {
			return NewInvalidRequest("recipient_data requires recipient_email for channel email")
		}
		if err := validate.Var(payload.RecipientData.RecipientEmail, "email"); err != nil {
			return NewInvalidRequest("recipient_email must be a valid email address")
		}
	}

	if !payload.RecipientData.CommsConsent {
		return NewConsentRequired()
	}
	return nil
}
