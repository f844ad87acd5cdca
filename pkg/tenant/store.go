// Package tenant provides read-only access to tenant+project configuration
// records. The engine never writes this table; onboarding tooling owns it.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraldhq/herald/pkg/models"
)

// ErrNotFound is returned when no record exists for (company_id, project_id).
var ErrNotFound = errors.New("tenant config not found")

// Store is the config-store lookup contract.
type Store interface {
	Get(ctx context.Context, companyID, projectID string) (*models.TenantConfig, error)
}

// PGStore reads tenant configuration from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a tenant config store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get fetches the configuration record for a tenant project.
func (s *PGStore) Get(ctx context.Context, companyID, projectID string) (*models.TenantConfig, error) {
	const q = `
		SELECT project_status, allowed_channels, channel_configs, ai_config,
		       tenant_reps, rate_limits
		FROM tenant_configs
		WHERE company_id = $1 AND project_id = $2`

	var (
		status          string
		allowedChannels []string
		channelConfigs  []byte
		aiConfig        []byte
		tenantReps      []byte
		rateLimits      []byte
	)
	err := s.pool.QueryRow(ctx, q, companyID, projectID).Scan(
		&status, &allowedChannels, &channelConfigs, &aiConfig, &tenantReps, &rateLimits,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying tenant config %s/%s: %w", companyID, projectID, err)
	}

	cfg := &models.TenantConfig{
		CompanyID:       companyID,
		ProjectID:       projectID,
		ProjectStatus:   models.ProjectStatus(status),
		AllowedChannels: allowedChannels,
	}
	if err := json.Unmarshal(channelConfigs, &cfg.ChannelConfigs); err != nil {
		return nil, fmt.Errorf("decoding channel configs for %s/%s: %w", companyID, projectID, err)
	}
	if err := json.Unmarshal(aiConfig, &cfg.AIConfig); err != nil {
		return nil, fmt.Errorf("decoding ai config for %s/%s: %w", companyID, projectID, err)
	}
	if len(tenantReps) > 0 {
		if err := json.Unmarshal(tenantReps, &cfg.TenantReps); err != nil {
			return nil, fmt.Errorf("decoding tenant reps for %s/%s: %w", companyID, projectID, err)
		}
	}
	if len(rateLimits) > 0 {
		if err := json.Unmarshal(rateLimits, &cfg.RateLimits); err != nil {
			return nil, fmt.Errorf("decoding rate limits for %s/%s: %w", companyID, projectID, err)
		}
	}
	return cfg, nil
}
