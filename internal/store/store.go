// Package store is the GORM-backed repository for triggers, campaigns, flows,
// accounts, leads, messages, analytics and scheduled resumes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ig-automation/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// --- Triggers ---

func (s *Store) CreateTrigger(ctx context.Context, t *models.Trigger) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) GetTrigger(ctx context.Context, id string) (*models.Trigger, error) {
	var t models.Trigger
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "trigger", id)
	}
	return &t, nil
}

func (s *Store) UpdateTrigger(ctx context.Context, id string, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Trigger{}).Where("id = ?", id).Updates(fields).Error
}

// SaveCheckpoint persists the resumption point of a flow run.
func (s *Store) SaveCheckpoint(ctx context.Context, id, nodeID string, state map[string]interface{}) error {
	return s.UpdateTrigger(ctx, id, map[string]interface{}{
		"current_node_id": nodeID,
		"flow_state":      datatypes.JSONMap(state),
	})
}

// TriggerExists reports whether the campaign already holds a trigger for the source event.
func (s *Store) TriggerExists(ctx context.Context, campaignID, sourceID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Trigger{}).
		Where("campaign_id = ? AND source_id = ?", campaignID, sourceID).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) CountTriggers(ctx context.Context, campaignID string, statuses []models.TriggerStatus, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Trigger{}).
		Where("campaign_id = ? AND status IN ? AND created_at >= ?", campaignID, statuses, since.UTC()).
		Count(&n).Error
	return n, err
}

// ListPendingTriggers returns PENDING triggers oldest first. A nil campaignIDs
// slice means every campaign.
func (s *Store) ListPendingTriggers(ctx context.Context, campaignIDs []string, limit int) ([]models.Trigger, error) {
	q := s.db.WithContext(ctx).Where("status = ?", models.StatusPending)
	if campaignIDs != nil {
		q = q.Where("campaign_id IN ?", campaignIDs)
	}
	var triggers []models.Trigger
	err := q.Order("created_at ASC").Limit(limit).Find(&triggers).Error
	return triggers, err
}

func (s *Store) CountPendingTriggers(ctx context.Context, campaignIDs []string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Trigger{}).
		Where("status = ? AND campaign_id IN ?", models.StatusPending, campaignIDs).
		Count(&n).Error
	return n, err
}

// --- Campaigns, flows and accounts ---

func (s *Store) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "campaign", id)
	}
	return &c, nil
}

// ListCampaigns returns the owner's campaigns. An empty ownerID lists all owners.
func (s *Store) ListCampaigns(ctx context.Context, ownerID string, activeOnly bool) ([]models.Campaign, error) {
	q := s.db.WithContext(ctx).Model(&models.Campaign{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if activeOnly {
		q = q.Where("status = ?", models.CampaignActive)
	}
	var campaigns []models.Campaign
	err := q.Order("created_at ASC").Find(&campaigns).Error
	return campaigns, err
}

func (s *Store) ListActiveCampaignsForAccount(ctx context.Context, accountID string) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, models.CampaignActive).
		Order("created_at ASC").
		Find(&campaigns).Error
	return campaigns, err
}

// GetFlow loads a flow with nodes in declaration order.
func (s *Store) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	var f models.Flow
	err := s.db.WithContext(ctx).
		Preload("Nodes", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		Preload("Edges", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&f, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "flow", id)
	}
	return &f, nil
}

// SaveFlow writes the flow row and replaces its nodes and edges.
func (s *Store) SaveFlow(ctx context.Context, f *models.Flow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes, edges := f.Nodes, f.Edges
		f.Nodes, f.Edges = nil, nil
		defer func() { f.Nodes, f.Edges = nodes, edges }()

		if err := tx.Save(f).Error; err != nil {
			return err
		}
		if err := tx.Where("flow_id = ?", f.ID).Delete(&models.FlowNode{}).Error; err != nil {
			return err
		}
		if err := tx.Where("flow_id = ?", f.ID).Delete(&models.FlowEdge{}).Error; err != nil {
			return err
		}
		for i := range nodes {
			nodes[i].ID = 0
			nodes[i].FlowID = f.ID
		}
		for i := range edges {
			edges[i].ID = 0
			edges[i].FlowID = f.ID
		}
		if len(nodes) > 0 {
			if err := tx.Create(&nodes).Error; err != nil {
				return err
			}
		}
		if len(edges) > 0 {
			if err := tx.Create(&edges).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateAccount(ctx context.Context, a *models.InstagramAccount) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.InstagramAccount, error) {
	var a models.InstagramAccount
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "account", id)
	}
	return &a, nil
}

func (s *Store) GetAccountByExternalID(ctx context.Context, externalID string) (*models.InstagramAccount, error) {
	var a models.InstagramAccount
	if err := s.db.WithContext(ctx).First(&a, "external_id = ?", externalID).Error; err != nil {
		return nil, notFound(err, "account", externalID)
	}
	return &a, nil
}

// --- Leads ---

func (s *Store) FindLead(ctx context.Context, ownerID, externalUserID string) (*models.Lead, error) {
	var l models.Lead
	err := s.db.WithContext(ctx).
		First(&l, "owner_id = ? AND external_user_id = ?", ownerID, externalUserID).Error
	if err != nil {
		return nil, notFound(err, "lead", externalUserID)
	}
	return &l, nil
}

func (s *Store) CreateLead(ctx context.Context, l *models.Lead) error {
	return s.db.WithContext(ctx).Create(l).Error
}

// TouchLead records one more interaction with an atomic increment.
func (s *Store) TouchLead(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_interaction_at": at.UTC(),
		"interaction_count":   gorm.Expr("interaction_count + 1"),
	}).Error
}

func (s *Store) UpdateLead(ctx context.Context, id string, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", id).Updates(fields).Error
}

func (s *Store) ListLeads(ctx context.Context, ownerID string) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("last_interaction_at DESC").Find(&leads).Error
	return leads, err
}

// --- Messages and analytics ---

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) ListMessages(ctx context.Context, triggerID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).Where("trigger_id = ?", triggerID).Order("id ASC").Find(&msgs).Error
	return msgs, err
}

var analyticsColumns = []string{
	"trigger_count", "dms_sent", "dms_delivered", "dms_failed", "flow_completions", "flow_dropoffs",
}

// IncrementAnalytics adds deltas to the (campaign, day) row in one upsert.
func (s *Store) IncrementAnalytics(ctx context.Context, campaignID, day string, deltas map[string]int64) error {
	row := models.CampaignAnalytics{
		CampaignID:      campaignID,
		Day:             day,
		TriggerCount:    deltas["trigger_count"],
		DMsSent:         deltas["dms_sent"],
		DMsDelivered:    deltas["dms_delivered"],
		DMsFailed:       deltas["dms_failed"],
		FlowCompletions: deltas["flow_completions"],
		FlowDropoffs:    deltas["flow_dropoffs"],
	}
	updates := make(map[string]interface{}, len(analyticsColumns))
	for _, col := range analyticsColumns {
		updates[col] = gorm.Expr(fmt.Sprintf("campaign_analytics.%s + excluded.%s", col, col))
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error
}

func (s *Store) ListAnalytics(ctx context.Context, campaignID string) ([]models.CampaignAnalytics, error) {
	var rows []models.CampaignAnalytics
	err := s.db.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("day DESC").Find(&rows).Error
	return rows, err
}

// --- Scheduled resumes ---

func (s *Store) ScheduleResume(ctx context.Context, r *models.ScheduledResume) error {
	if r.Status == "" {
		r.Status = models.ResumePending
	}
	return s.db.WithContext(ctx).Create(r).Error
}

// ListDueResumes returns pending delay resumes whose time has come. A nil
// campaignIDs slice means every campaign.
func (s *Store) ListDueResumes(ctx context.Context, campaignIDs []string, now time.Time, limit int) ([]models.ScheduledResume, error) {
	q := s.db.WithContext(ctx).
		Where("status = ? AND reason = ? AND resume_at <= ?", models.ResumePending, models.ResumeDelay, now.UTC())
	if campaignIDs != nil {
		q = q.Where("campaign_id IN ?", campaignIDs)
	}
	var rows []models.ScheduledResume
	err := q.Order("resume_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CloseResumes moves the trigger's pending resumes with the given reason to
// status and reports how many rows changed. A zero count means another
// worker already claimed them.
func (s *Store) CloseResumes(ctx context.Context, triggerID, reason, status string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.ScheduledResume{}).
		Where("trigger_id = ? AND reason = ? AND status = ?", triggerID, reason, models.ResumePending).
		Update("status", status)
	return res.RowsAffected, res.Error
}

// HasPendingResume reports whether the trigger still has an unclaimed resume
// with the given reason.
func (s *Store) HasPendingResume(ctx context.Context, triggerID, reason string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ScheduledResume{}).
		Where("trigger_id = ? AND reason = ? AND status = ?", triggerID, reason, models.ResumePending).
		Count(&n).Error
	return n > 0, err
}

// FindAwaitingTrigger returns the trigger of one of the campaigns that is
// suspended on a capture node for the given external user.
func (s *Store) FindAwaitingTrigger(ctx context.Context, campaignIDs []string, externalUserID string) (*models.Trigger, error) {
	var t models.Trigger
	err := s.db.WithContext(ctx).
		Joins("JOIN scheduled_resumes ON scheduled_resumes.trigger_id = triggers.id").
		Where("scheduled_resumes.reason = ? AND scheduled_resumes.status = ?", models.ResumeCapture, models.ResumePending).
		Where("triggers.campaign_id IN ? AND triggers.external_user_id = ? AND triggers.status = ?",
			campaignIDs, externalUserID, models.StatusProcessing).
		Order("scheduled_resumes.created_at DESC").
		First(&t).Error
	if err != nil {
		return nil, notFound(err, "awaiting trigger for user", externalUserID)
	}
	return &t, nil
}
