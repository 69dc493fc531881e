// Package leads keeps one Lead row per (owner, external user).
package leads

import (
	"context"
	"errors"
	"time"

	"ig-automation/internal/models"
	"ig-automation/internal/store"

	"github.com/rs/zerolog/log"
)

type Repository interface {
	FindLead(ctx context.Context, ownerID, externalUserID string) (*models.Lead, error)
	CreateLead(ctx context.Context, l *models.Lead) error
	TouchLead(ctx context.Context, id string, at time.Time) error
	UpdateLead(ctx context.Context, id string, fields map[string]interface{}) error
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Upsert records an interaction for the trigger's user and returns the lead
// id. Errors are logged and yield nil so processing can continue.
func (s *Service) Upsert(ctx context.Context, t *models.Trigger, c *models.Campaign) *string {
	logger := log.With().Str("trigger_id", t.ID).Str("external_user_id", t.ExternalUserID).Logger()
	now := s.now().UTC()

	lead, err := s.repo.FindLead(ctx, c.OwnerID, t.ExternalUserID)
	switch {
	case err == nil:
		if err := s.repo.TouchLead(ctx, lead.ID, now); err != nil {
			logger.Error().Err(err).Msg("failed to update lead")
			return nil
		}
		return &lead.ID
	case !errors.Is(err, store.ErrNotFound):
		logger.Error().Err(err).Msg("failed to look up lead")
		return nil
	}

	lead = &models.Lead{
		OwnerID:            c.OwnerID,
		ExternalUserID:     t.ExternalUserID,
		ExternalUsername:   t.ExternalUsername,
		SourceTriggerType:  t.Type,
		SourceCampaignID:   c.ID,
		FirstInteractionAt: now,
		LastInteractionAt:  now,
		InteractionCount:   1,
	}
	if err := s.repo.CreateLead(ctx, lead); err != nil {
		// Lost a race on the unique index: fall back to an increment.
		existing, findErr := s.repo.FindLead(ctx, c.OwnerID, t.ExternalUserID)
		if findErr != nil {
			logger.Error().Err(err).Msg("failed to create lead")
			return nil
		}
		if err := s.repo.TouchLead(ctx, existing.ID, now); err != nil {
			logger.Error().Err(err).Msg("failed to update lead")
			return nil
		}
		return &existing.ID
	}
	logger.Debug().Str("lead_id", lead.ID).Msg("lead created")
	return &lead.ID
}

// ApplyCapture copies a captured email, phone or name onto the lead.
func (s *Service) ApplyCapture(ctx context.Context, leadID *string, field, value string) {
	if leadID == nil || value == "" {
		return
	}
	switch field {
	case "email", "phone", "name":
	default:
		return
	}
	if err := s.repo.UpdateLead(ctx, *leadID, map[string]interface{}{field: value}); err != nil {
		log.Error().Err(err).Str("lead_id", *leadID).Str("field", field).Msg("failed to store captured field")
	}
}
