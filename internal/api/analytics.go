package api

import (
	"net/http"

	"ig-automation/internal/automation"
	"ig-automation/internal/models"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	Engine *automation.Engine
}

func NewAnalyticsHandler(engine *automation.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{Engine: engine}
}

// GetCampaignAnalytics returns the daily counters of an owned campaign,
// newest day first, with their totals.
func (h *AnalyticsHandler) GetCampaignAnalytics(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := h.Engine.OwnedCampaign(ctx, OwnerID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	rows, err := h.Engine.Store.ListAnalytics(ctx, campaign.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []models.CampaignAnalytics{}
	}

	var total models.CampaignAnalytics
	for _, r := range rows {
		total.TriggerCount += r.TriggerCount
		total.DMsSent += r.DMsSent
		total.DMsDelivered += r.DMsDelivered
		total.DMsFailed += r.DMsFailed
		total.FlowCompletions += r.FlowCompletions
		total.FlowDropoffs += r.FlowDropoffs
	}

	c.JSON(http.StatusOK, gin.H{
		"campaignId": campaign.ID,
		"days":       rows,
		"totals": gin.H{
			"trigger_count":    total.TriggerCount,
			"dms_sent":         total.DMsSent,
			"dms_delivered":    total.DMsDelivered,
			"dms_failed":       total.DMsFailed,
			"flow_completions": total.FlowCompletions,
			"flow_dropoffs":    total.FlowDropoffs,
		},
	})
}
