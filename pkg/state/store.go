// Package state persists conversation records. CreateInitial is the single
// idempotency barrier of the engine: it is the only operation that can bring
// a conversation_id into existence, and it does so conditionally.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraldhq/herald/pkg/models"
)

// CreateOutcome is the result of a conditional insert.
type CreateOutcome int

// Conditional insert outcomes.
const (
	Inserted CreateOutcome = iota
	AlreadyExists
)

// ErrNotFound is returned when a conversation record does not exist.
var ErrNotFound = errors.New("conversation not found")

// Key identifies one conversation record.
type Key struct {
	PrimaryChannel string
	ConversationID string
}

// SendPatch is the final-update payload applied after a successful provider
// send: the assistant message appended to history plus the terminal fields.
type SendPatch struct {
	ThreadID          string
	Message           models.MessageEntry
	ProviderMessageID string
	ProcessingTimeMS  int64
}

// Store is the conversation-state contract.
type Store interface {
	CreateInitial(ctx context.Context, rec *models.ConversationRecord) (CreateOutcome, error)
	UpdateAfterSend(ctx context.Context, key Key, patch SendPatch) error
	UpdateStatus(ctx context.Context, key Key, status models.ConversationStatus) error
	Get(ctx context.Context, conversationID string) (*models.ConversationRecord, error)
}

// PGStore persists conversation records in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a conversation store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// CreateInitial inserts the record iff no row with its conversation_id
// exists. ON CONFLICT DO NOTHING covers both the primary key and the unique
// conversation_id index; zero rows affected means a duplicate.
func (s *PGStore) CreateInitial(ctx context.Context, rec *models.ConversationRecord) (CreateOutcome, error) {
	projectData, err := marshalNullable(rec.ProjectData)
	if err != nil {
		return 0, fmt.Errorf("encoding project data: %w", err)
	}
	tenantReps, err := marshalNullable(rec.TenantReps)
	if err != nil {
		return 0, fmt.Errorf("encoding tenant reps: %w", err)
	}
	aiConfig, err := json.Marshal(rec.AIConfig)
	if err != nil {
		return 0, fmt.Errorf("encoding ai config: %w", err)
	}
	channelConfig, err := json.Marshal(rec.ChannelConfig)
	if err != nil {
		return 0, fmt.Errorf("encoding channel config: %w", err)
	}

	const q = `
		INSERT INTO conversations (
			primary_channel, conversation_id, company_id, project_id,
			channel_method, conversation_status, task_complete, request_id,
			router_version, processor_version, messages,
			project_data, tenant_reps, ai_config, channel_config
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '[]'::jsonb, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		rec.PrimaryChannel, rec.ConversationID, rec.CompanyID, rec.ProjectID,
		string(rec.ChannelMethod), string(rec.ConversationStatus), rec.TaskComplete,
		rec.RequestID, rec.RouterVersion, rec.ProcessorVersion,
		projectData, tenantReps, aiConfig, channelConfig,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting conversation %s: %w", rec.ConversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// UpdateAfterSend atomically applies the terminal success state: status,
// task_complete, thread id, provider message id, processing time, and an
// append to the messages history (create-if-absent).
func (s *PGStore) UpdateAfterSend(ctx context.Context, key Key, patch SendPatch) error {
	msg, err := json.Marshal([]models.MessageEntry{patch.Message})
	if err != nil {
		return fmt.Errorf("encoding message entry: %w", err)
	}

	const q = `
		UPDATE conversations SET
			conversation_status = $3,
			task_complete       = 1,
			thread_id           = $4,
			provider_message_id = $5,
			processing_time_ms  = $6,
			messages            = COALESCE(messages, '[]'::jsonb) || $7::jsonb,
			updated_at          = now()
		WHERE primary_channel = $1 AND conversation_id = $2`

	tag, err := s.pool.Exec(ctx, q,
		key.PrimaryChannel, key.ConversationID,
		string(models.StatusInitialMessageSent),
		patch.ThreadID, patch.ProviderMessageID, patch.ProcessingTimeMS, msg,
	)
	if err != nil {
		return fmt.Errorf("updating conversation %s after send: %w", key.ConversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating conversation %s after send: %w", key.ConversationID, ErrNotFound)
	}
	return nil
}

// UpdateStatus is the best-effort status transition used on failure paths.
func (s *PGStore) UpdateStatus(ctx context.Context, key Key, status models.ConversationStatus) error {
	const q = `
		UPDATE conversations SET conversation_status = $3, updated_at = now()
		WHERE primary_channel = $1 AND conversation_id = $2`

	tag, err := s.pool.Exec(ctx, q, key.PrimaryChannel, key.ConversationID, string(status))
	if err != nil {
		return fmt.Errorf("updating conversation %s status: %w", key.ConversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating conversation %s status: %w", key.ConversationID, ErrNotFound)
	}
	return nil
}

// Get fetches a conversation record by its globally unique conversation_id.
func (s *PGStore) Get(ctx context.Context, conversationID string) (*models.ConversationRecord, error) {
	const q = `
		SELECT primary_channel, conversation_id, company_id, project_id,
		       channel_method, conversation_status, task_complete, request_id,
		       router_version, processor_version,
		       COALESCE(thread_id, ''), messages,
		       COALESCE(processing_time_ms, 0), COALESCE(provider_message_id, ''),
		       project_data, tenant_reps, ai_config, channel_config,
		       hand_off_to_human, COALESCE(hand_off_reason, ''),
		       created_at, updated_at
		FROM conversations
		WHERE conversation_id = $1`

	var (
		rec           models.ConversationRecord
		channelMethod string
		status        string
		messages      []byte
		projectData   []byte
		tenantReps    []byte
		aiConfig      []byte
		channelConfig []byte
	)
	err := s.pool.QueryRow(ctx, q, conversationID).Scan(
		&rec.PrimaryChannel, &rec.ConversationID, &rec.CompanyID, &rec.ProjectID,
		&channelMethod, &status, &rec.TaskComplete, &rec.RequestID,
		&rec.RouterVersion, &rec.ProcessorVersion,
		&rec.ThreadID, &messages,
		&rec.ProcessingTimeMS, &rec.ProviderMessageID,
		&projectData, &tenantReps, &aiConfig, &channelConfig,
		&rec.HandOffToHuman, &rec.HandOffReason,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying conversation %s: %w", conversationID, err)
	}

	rec.ChannelMethod = models.Channel(channelMethod)
	rec.ConversationStatus = models.ConversationStatus(status)
	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages for %s: %w", conversationID, err)
	}
	if len(projectData) > 0 {
		if err := json.Unmarshal(projectData, &rec.ProjectData); err != nil {
			return nil, fmt.Errorf("decoding project data for %s: %w", conversationID, err)
		}
	}
	if len(tenantReps) > 0 {
		if err := json.Unmarshal(tenantReps, &rec.TenantReps); err != nil {
			return nil, fmt.Errorf("decoding tenant reps for %s: %w", conversationID, err)
		}
	}
	if err := json.Unmarshal(aiConfig, &rec.AIConfig); err != nil {
		return nil, fmt.Errorf("decoding ai config for %s: %w", conversationID, err)
	}
	if err := json.Unmarshal(channelConfig, &rec.ChannelConfig); err != nil {
		return nil, fmt.Errorf("decoding channel config for %s: %w", conversationID, err)
	}
	return &rec, nil
}

// marshalNullable encodes v as JSON, mapping nil to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	case []models.TenantRep:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
