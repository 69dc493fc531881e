package automation

import (
	"context"
	"errors"
	"fmt"

	"ig-automation/internal/models"
	"ig-automation/internal/store"

	"github.com/rs/zerolog/log"
)

// Summary aggregates a batch run.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

func (s *Summary) add(res *Result, err error) {
	s.Processed++
	if err != nil || res == nil || !res.Success {
		s.Failed++
	}
}

// ProcessBatch pulls up to BatchSize PENDING triggers of the given campaigns,
// oldest first, and processes them one after another. nil campaignIDs
// selects every campaign.
func (e *Engine) ProcessBatch(ctx context.Context, campaignIDs []string) (Summary, error) {
	var sum Summary
	if campaignIDs != nil && len(campaignIDs) == 0 {
		return sum, nil
	}
	triggers, err := e.Store.ListPendingTriggers(ctx, campaignIDs, e.opts.BatchSize)
	if err != nil {
		return sum, fmt.Errorf("failed to list pending triggers: %w", err)
	}

	for _, t := range triggers {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := e.Process(ctx, t.ID)
		if err != nil {
			log.Error().Err(err).Str("trigger_id", t.ID).Msg("trigger processing error")
		}
		sum.add(res, err)
	}
	log.Info().Int("processed", sum.Processed).Int("failed", sum.Failed).Msg("batch finished")
	return sum, nil
}

// RunDueResumes continues delayed flows whose resume time has passed.
func (e *Engine) RunDueResumes(ctx context.Context, campaignIDs []string) (Summary, error) {
	var sum Summary
	if campaignIDs != nil && len(campaignIDs) == 0 {
		return sum, nil
	}
	due, err := e.Store.ListDueResumes(ctx, campaignIDs, e.now(), e.opts.BatchSize)
	if err != nil {
		return sum, fmt.Errorf("failed to list due resumes: %w", err)
	}
	for _, row := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := e.ResumeDelayed(ctx, row.TriggerID)
		if err != nil {
			log.Error().Err(err).Str("trigger_id", row.TriggerID).Msg("resume error")
		}
		sum.add(res, err)
	}
	return sum, nil
}

// Owner-scoped entry points used by the HTTP layer.

// OwnedTrigger loads a trigger whose campaign belongs to ownerID.
func (e *Engine) OwnedTrigger(ctx context.Context, ownerID, triggerID string) (*models.Trigger, error) {
	t, err := e.Store.GetTrigger(ctx, triggerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTriggerNotOwned
	}
	if err != nil {
		return nil, err
	}
	c, err := e.Store.GetCampaign(ctx, t.CampaignID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c.OwnerID != ownerID) {
		return nil, ErrTriggerNotOwned
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) OwnedCampaign(ctx context.Context, ownerID, campaignID string) (*models.Campaign, error) {
	c, err := e.Store.GetCampaign(ctx, campaignID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c.OwnerID != ownerID) {
		return nil, ErrCampaignNotOwned
	}
	return c, err
}

func (e *Engine) ProcessOwnedTrigger(ctx context.Context, ownerID, triggerID string) (*Result, error) {
	if _, err := e.OwnedTrigger(ctx, ownerID, triggerID); err != nil {
		return nil, err
	}
	return e.Process(ctx, triggerID)
}

func (e *Engine) ProcessOwnedCampaign(ctx context.Context, ownerID, campaignID string) (Summary, error) {
	if _, err := e.OwnedCampaign(ctx, ownerID, campaignID); err != nil {
		return Summary{}, err
	}
	return e.ProcessBatch(ctx, []string{campaignID})
}

// ProcessOwner runs a batch across the owner's ACTIVE campaigns.
func (e *Engine) ProcessOwner(ctx context.Context, ownerID string) (Summary, error) {
	ids, err := e.campaignIDs(ctx, ownerID, true)
	if err != nil {
		return Summary{}, err
	}
	return e.ProcessBatch(ctx, ids)
}

func (e *Engine) PendingCount(ctx context.Context, ownerID string) (int64, error) {
	ids, err := e.campaignIDs(ctx, ownerID, false)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return e.Store.CountPendingTriggers(ctx, ids)
}

func (e *Engine) ResumeOwnerDue(ctx context.Context, ownerID string) (Summary, error) {
	ids, err := e.campaignIDs(ctx, ownerID, false)
	if err != nil {
		return Summary{}, err
	}
	return e.RunDueResumes(ctx, ids)
}

func (e *Engine) SubmitOwnedInput(ctx context.Context, ownerID, triggerID, input string) (*Result, error) {
	if _, err := e.OwnedTrigger(ctx, ownerID, triggerID); err != nil {
		return nil, err
	}
	return e.ResumeWithInput(ctx, triggerID, input)
}

func (e *Engine) campaignIDs(ctx context.Context, ownerID string, activeOnly bool) ([]string, error) {
	campaigns, err := e.Store.ListCampaigns(ctx, ownerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
