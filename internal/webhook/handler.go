// Package webhook receives Instagram webhook events and turns them into
// PENDING triggers, or into input for flows waiting on a reply.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ig-automation/internal/automation"
	"ig-automation/internal/config"
	"ig-automation/internal/models"
	"ig-automation/internal/store"
	payload "ig-automation/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// InputResumer delivers a user's reply to a suspended capture node.
type InputResumer interface {
	ResumeWithInput(ctx context.Context, triggerID, input string) (*automation.Result, error)
}

type Handler struct {
	Config   *config.Config
	Store    *store.Store
	Inputs   InputResumer
	Notifier automation.Notifier
}

func NewHandler(cfg *config.Config, s *store.Store, inputs InputResumer) *Handler {
	return &Handler{
		Config: cfg,
		Store:  s,
		Inputs: inputs,
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != h.Config.VerifyToken {
		c.Status(http.StatusForbidden)
		return
	}
	log.Info().Msg("webhook verified")
	c.String(http.StatusOK, challenge)
}

func (h *Handler) HandleEvent(c *gin.Context) {
	var body payload.WebhookPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warn().Err(err).Msg("invalid webhook payload")
		c.Status(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	for _, entry := range body.Entry {
		acct, err := h.Store.GetAccountByExternalID(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Debug().Str("account", entry.ID).Msg("webhook for unknown account")
			} else {
				log.Error().Err(err).Str("account", entry.ID).Msg("failed to load account")
			}
			continue
		}
		campaigns, err := h.Store.ListActiveCampaignsForAccount(ctx, acct.ID)
		if err != nil {
			log.Error().Err(err).Str("account_id", acct.ID).Msg("failed to list campaigns")
			continue
		}

		for _, change := range entry.Changes {
			if change.Field != "comments" {
				continue
			}
			h.ingestComment(ctx, acct, campaigns, change.Value)
		}
		for _, event := range entry.Messaging {
			h.ingestMessage(ctx, acct, campaigns, event)
		}
	}

	// Meta retries anything but 200, so per-event failures are only logged.
	c.Status(http.StatusOK)
}

func (h *Handler) ingestComment(ctx context.Context, acct *models.InstagramAccount, campaigns []models.Campaign, ev payload.CommentChange) {
	if ev.ID == "" || ev.From.ID == "" || ev.From.ID == acct.ExternalID {
		return
	}
	for i := range campaigns {
		c := &campaigns[i]
		if c.TriggerType != models.TriggerComment || !matchesTarget(c.PostID, ev.Media.ID) || !matchesKeywords(c.Keywords, ev.Text) {
			continue
		}
		h.createTrigger(ctx, c, &models.Trigger{
			Type:             models.TriggerComment,
			ExternalUserID:   ev.From.ID,
			ExternalUsername: ev.From.Username,
			SourceID:         ev.ID,
			SourceText:       ev.Text,
			Metadata:         datatypes.JSONMap{"media_id": ev.Media.ID},
		})
	}
}

func (h *Handler) ingestMessage(ctx context.Context, acct *models.InstagramAccount, campaigns []models.Campaign, ev payload.Messaging) {
	msg := ev.Message
	if msg == nil || msg.IsEcho || ev.Sender.ID == "" || ev.Sender.ID == acct.ExternalID {
		return
	}

	if story := msg.StoryID(); story != "" {
		for i := range campaigns {
			c := &campaigns[i]
			if c.TriggerType != models.TriggerStoryReply || !matchesTarget(c.PostID, story) || !matchesKeywords(c.Keywords, msg.Text) {
				continue
			}
			h.createTrigger(ctx, c, &models.Trigger{
				Type:           models.TriggerStoryReply,
				ExternalUserID: ev.Sender.ID,
				SourceID:       msg.MID,
				SourceText:     msg.Text,
				Metadata:       datatypes.JSONMap{"story_id": story},
			})
		}
		return
	}

	if h.resumeAwaiting(ctx, campaigns, ev.Sender.ID, msg.Text) {
		return
	}

	for i := range campaigns {
		c := &campaigns[i]
		if c.TriggerType != models.TriggerDMKeyword || !matchesKeywords(c.Keywords, msg.Text) {
			continue
		}
		h.createTrigger(ctx, c, &models.Trigger{
			Type:           models.TriggerDMKeyword,
			ExternalUserID: ev.Sender.ID,
			SourceID:       msg.MID,
			SourceText:     msg.Text,
		})
	}
}

// resumeAwaiting hands the DM to a flow of this account waiting on the
// sender's reply. It reports whether such a flow existed.
func (h *Handler) resumeAwaiting(ctx context.Context, campaigns []models.Campaign, senderID, text string) bool {
	if h.Inputs == nil || len(campaigns) == 0 {
		return false
	}
	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	t, err := h.Store.FindAwaitingTrigger(ctx, ids, senderID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("sender", senderID).Msg("failed to look up awaiting trigger")
		}
		return false
	}

	// The walk may send several messages; do not hold the webhook open.
	go func(id string) {
		res, err := h.Inputs.ResumeWithInput(context.Background(), id, text)
		if err != nil {
			log.Error().Err(err).Str("trigger_id", id).Msg("failed to deliver input")
			return
		}
		log.Info().Str("trigger_id", id).Str("status", string(res.Status)).Msg("delivered input from DM")
	}(t.ID)
	return true
}

func (h *Handler) createTrigger(ctx context.Context, c *models.Campaign, t *models.Trigger) {
	exists, err := h.Store.TriggerExists(ctx, c.ID, t.SourceID)
	if err != nil {
		log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to check duplicate trigger")
		return
	}
	if exists {
		log.Debug().Str("campaign_id", c.ID).Str("source_id", t.SourceID).Msg("duplicate webhook event")
		return
	}

	t.CampaignID = c.ID
	t.Status = models.StatusPending
	if err := h.Store.CreateTrigger(ctx, t); err != nil {
		log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to create trigger")
		return
	}
	log.Info().Str("trigger_id", t.ID).Str("campaign_id", c.ID).Str("type", string(t.Type)).Msg("trigger created")
	if h.Notifier != nil {
		h.Notifier.NotifyTrigger(t.ID, c.ID, t.Status, "")
	}
}

// matchesTarget accepts every post or story when the campaign names none.
func matchesTarget(want, got string) bool {
	return want == "" || want == got
}

// matchesKeywords reports whether text contains any of the comma separated
// keywords, ignoring case. No keywords matches everything.
func matchesKeywords(keywords, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	listed := false
	for _, kw := range strings.Split(keywords, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		listed = true
		if strings.Contains(text, kw) {
			return true
		}
	}
	return !listed
}
