package api

import (
	"errors"
	"io"
	"net/http"

	"ig-automation/internal/automation"
	"ig-automation/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type TriggerHandler struct {
	Engine *automation.Engine
}

func NewTriggerHandler(engine *automation.Engine) *TriggerHandler {
	return &TriggerHandler{Engine: engine}
}

type processRequest struct {
	TriggerID  string `json:"triggerId"`
	CampaignID string `json:"campaignId"`
}

// Process runs one trigger, one campaign's pending triggers, or every ACTIVE
// campaign of the caller, depending on the body. An empty body means all.
func (h *TriggerHandler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := OwnerID(c)
	ctx := c.Request.Context()

	switch {
	case req.TriggerID != "":
		res, err := h.Engine.ProcessOwnedTrigger(ctx, owner, req.TriggerID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	case req.CampaignID != "":
		sum, err := h.Engine.ProcessOwnedCampaign(ctx, owner, req.CampaignID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	default:
		sum, err := h.Engine.ProcessOwner(ctx, owner)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

// Pending reports the PENDING triggers across the caller's campaigns.
func (h *TriggerHandler) Pending(c *gin.Context) {
	n, err := h.Engine.PendingCount(c.Request.Context(), OwnerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pendingCount": n})
}

// Resume continues delayed flows of the caller that are due.
func (h *TriggerHandler) Resume(c *gin.Context) {
	sum, err := h.Engine.ResumeOwnerDue(c.Request.Context(), OwnerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// SubmitInput delivers a reply to a trigger waiting on a capture node.
func (h *TriggerHandler) SubmitInput(c *gin.Context) {
	var req struct {
		Input string `json:"input" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Engine.SubmitOwnedInput(c.Request.Context(), OwnerID(c), c.Param("id"), req.Input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetTrigger returns a trigger with its outbound message log.
func (h *TriggerHandler) GetTrigger(c *gin.Context) {
	ctx := c.Request.Context()
	t, err := h.Engine.OwnedTrigger(ctx, OwnerID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	messages, err := h.Engine.Store.ListMessages(ctx, t.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"trigger": t, "messages": messages})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, automation.ErrTriggerNotOwned), errors.Is(err, automation.ErrCampaignNotOwned):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, automation.ErrNotAwaitingInput):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
