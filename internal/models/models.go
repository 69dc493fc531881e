package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TriggerType string

const (
	TriggerComment     TriggerType = "COMMENT"
	TriggerStoryReply  TriggerType = "STORY_REPLY"
	TriggerDMKeyword   TriggerType = "DM_KEYWORD"
	TriggerNewFollower TriggerType = "NEW_FOLLOWER"
)

type TriggerStatus string

const (
	StatusPending    TriggerStatus = "PENDING"
	StatusProcessing TriggerStatus = "PROCESSING"
	StatusCompleted  TriggerStatus = "COMPLETED"
	StatusFailed     TriggerStatus = "FAILED"
	StatusSkipped    TriggerStatus = "SKIPPED"
)

// Terminal reports whether no further transition is allowed.
func (s TriggerStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

const (
	ActionSendDM       = "send_dm"
	ActionReplyComment = "reply_comment"
)

const (
	CampaignActive = "ACTIVE"
	CampaignPaused = "PAUSED"
)

type MessageType string

const (
	MessageText         MessageType = "TEXT"
	MessageButton       MessageType = "BUTTON"
	MessageCommentReply MessageType = "COMMENT_REPLY"
)

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// Trigger is one detected Instagram event awaiting processing
type Trigger struct {
	ID               string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CampaignID       string            `gorm:"type:varchar(36);index;not null" json:"campaign_id"`
	ExternalUserID   string            `gorm:"type:varchar(255);index" json:"external_user_id"`
	ExternalUsername string            `gorm:"type:varchar(255)" json:"external_username"`
	Type             TriggerType       `gorm:"type:varchar(20)" json:"type"`
	SourceID         string            `gorm:"type:varchar(255);index" json:"source_id"`
	SourceText       string            `gorm:"type:text" json:"source_text"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	Status           TriggerStatus     `gorm:"type:varchar(20);index;default:'PENDING'" json:"status"`
	CurrentNodeID    *string           `gorm:"type:varchar(255)" json:"current_node_id"`
	FlowState        datatypes.JSONMap `json:"flow_state"`
	LeadID           *string           `gorm:"type:varchar(36)" json:"lead_id"`
	ErrorMessage     *string           `gorm:"type:text" json:"error_message"`
	CreatedAt        time.Time         `gorm:"index" json:"created_at"`
	ProcessedAt      *time.Time        `json:"processed_at"`
}

func (Trigger) TableName() string {
	return "triggers"
}

func (t *Trigger) BeforeCreate(tx *gorm.DB) error {
	newID(&t.ID)
	return nil
}

// Campaign owns the automation configuration for a set of triggers
type Campaign struct {
	ID              string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID         string      `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	AccountID       *string     `gorm:"type:varchar(36);index" json:"account_id"`
	Name            string      `gorm:"type:varchar(255)" json:"name"`
	TriggerType     TriggerType `gorm:"type:varchar(20)" json:"trigger_type"`
	PostID          string      `gorm:"type:varchar(255)" json:"post_id"`
	Keywords        string      `gorm:"type:text" json:"keywords"` // Comma separated
	Action          string      `gorm:"type:varchar(20)" json:"action"`
	MessageTemplate string      `gorm:"type:text" json:"message_template"`
	FlowID          *string     `gorm:"type:varchar(36)" json:"flow_id"`
	HourlyLimit     int         `json:"hourly_limit"`
	DailyLimit      int         `json:"daily_limit"`
	Status          string      `gorm:"type:varchar(20);default:'ACTIVE'" json:"status"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

// HasSimpleAction reports whether the campaign carries a complete simple action.
func (c *Campaign) HasSimpleAction() bool {
	return c.Action != "" && c.MessageTemplate != ""
}

// InstagramAccount holds the credentials of a connected professional account
type InstagramAccount struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID     string    `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	ExternalID  string    `gorm:"type:varchar(255);uniqueIndex" json:"external_id"`
	Username    string    `gorm:"type:varchar(255)" json:"username"`
	AccessToken string    `gorm:"type:text" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InstagramAccount) TableName() string {
	return "instagram_accounts"
}

func (a *InstagramAccount) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}

// Flow is a conversation graph produced by the flow editor
type Flow struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID   string     `gorm:"type:varchar(36);index" json:"owner_id"`
	Name      string     `gorm:"type:varchar(255)" json:"name"`
	Nodes     []FlowNode `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE;" json:"nodes"`
	Edges     []FlowEdge `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE;" json:"edges"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Flow) TableName() string {
	return "flows"
}

func (f *Flow) BeforeCreate(tx *gorm.DB) error {
	newID(&f.ID)
	return nil
}

type FlowNode struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	FlowID    string         `gorm:"index;type:varchar(36)" json:"flow_id"`
	NodeID    string         `gorm:"type:varchar(255)" json:"node_id"` // Editor node id
	Type      string         `gorm:"type:varchar(50)" json:"type"`
	SortOrder int            `json:"sort_order"` // Declaration order in the editor export
	PositionX float64        `json:"position_x"`
	PositionY float64        `json:"position_y"`
	Data      datatypes.JSON `json:"data"`
}

func (FlowNode) TableName() string {
	return "flow_nodes"
}

type FlowEdge struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	FlowID       string `gorm:"index;type:varchar(36)" json:"flow_id"`
	EdgeID       string `gorm:"type:varchar(255)" json:"edge_id"` // Editor edge id
	Source       string `gorm:"type:varchar(255)" json:"source"`
	Target       string `gorm:"type:varchar(255)" json:"target"`
	SourceHandle string `gorm:"type:varchar(255)" json:"source_handle"`
}

func (FlowEdge) TableName() string {
	return "flow_edges"
}

// Lead is a deduplicated engaged user, unique per (owner, external user)
type Lead struct {
	ID                 string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID            string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_leads_owner_user" json:"owner_id"`
	ExternalUserID     string      `gorm:"type:varchar(255);not null;uniqueIndex:idx_leads_owner_user" json:"external_user_id"`
	ExternalUsername   string      `gorm:"type:varchar(255)" json:"external_username"`
	SourceTriggerType  TriggerType `gorm:"type:varchar(20)" json:"source_trigger_type"`
	SourceCampaignID   string      `gorm:"type:varchar(36)" json:"source_campaign_id"`
	FirstInteractionAt time.Time   `json:"first_interaction_at"`
	LastInteractionAt  time.Time   `json:"last_interaction_at"`
	InteractionCount   int         `gorm:"default:0" json:"interaction_count"`
	Email              string      `gorm:"type:varchar(255)" json:"email"`
	Name               string      `gorm:"type:varchar(255)" json:"name"`
	Phone              string      `gorm:"type:varchar(50)" json:"phone"`
	Tags               string      `gorm:"type:text" json:"tags"` // Comma separated tags
}

func (Lead) TableName() string {
	return "leads"
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	newID(&l.ID)
	return nil
}

// Message is the audit row of one outbound communication
type Message struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	TriggerID         string      `gorm:"type:varchar(36);index" json:"trigger_id"`
	CampaignID        string      `gorm:"type:varchar(36);index" json:"campaign_id"`
	RecipientID       string      `gorm:"type:varchar(255)" json:"recipient_id"`
	Content           string      `gorm:"type:text" json:"content"`
	Type              MessageType `gorm:"type:varchar(20)" json:"type"`
	Status            string      `gorm:"type:varchar(20)" json:"status"`
	ProviderMessageID string      `gorm:"type:varchar(255)" json:"provider_message_id"`
	SentAt            time.Time   `json:"sent_at"`
}

func (Message) TableName() string {
	return "messages"
}

// CampaignAnalytics is one row of counters per campaign and UTC day
type CampaignAnalytics struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	CampaignID      string `gorm:"type:varchar(36);not null;uniqueIndex:idx_analytics_campaign_day" json:"campaign_id"`
	Day             string `gorm:"type:varchar(10);not null;uniqueIndex:idx_analytics_campaign_day" json:"day"` // YYYY-MM-DD
	TriggerCount    int64  `json:"trigger_count"`
	DMsSent         int64  `gorm:"column:dms_sent" json:"dms_sent"`
	DMsDelivered    int64  `gorm:"column:dms_delivered" json:"dms_delivered"`
	DMsFailed       int64  `gorm:"column:dms_failed" json:"dms_failed"`
	FlowCompletions int64  `json:"flow_completions"`
	FlowDropoffs    int64  `json:"flow_dropoffs"`
}

func (CampaignAnalytics) TableName() string {
	return "campaign_analytics"
}

const (
	ResumeDelay   = "delay"
	ResumeCapture = "capture"

	ResumePending   = "pending"
	ResumeDone      = "done"
	ResumeCancelled = "cancelled"
)

// ScheduledResume records a suspended flow waiting for a time or an inbound reply
type ScheduledResume struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TriggerID  string     `gorm:"type:varchar(36);index;not null" json:"trigger_id"`
	CampaignID string     `gorm:"type:varchar(36);index" json:"campaign_id"`
	Reason     string     `gorm:"type:varchar(20)" json:"reason"`
	ResumeAt   *time.Time `gorm:"index" json:"resume_at"` // nil while awaiting input
	Status     string     `gorm:"type:varchar(20);index;default:'pending'" json:"status"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScheduledResume) TableName() string {
	return "scheduled_resumes"
}

// All lists every model for auto-migration and data copies.
func All() []interface{} {
	return []interface{}{
		&InstagramAccount{},
		&Flow{},
		&FlowNode{},
		&FlowEdge{},
		&Campaign{},
		&Trigger{},
		&Lead{},
		&Message{},
		&CampaignAnalytics{},
		&ScheduledResume{},
	}
}
