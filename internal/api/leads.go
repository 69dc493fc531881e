package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"ig-automation/internal/models"
	"ig-automation/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type LeadHandler struct {
	Store *store.Store
}

func NewLeadHandler(s *store.Store) *LeadHandler {
	return &LeadHandler{Store: s}
}

func (h *LeadHandler) GetLeads(c *gin.Context) {
	leads, err := h.Store.ListLeads(c.Request.Context(), OwnerID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	// Return empty array instead of null
	if leads == nil {
		leads = []models.Lead{}
	}
	c.JSON(http.StatusOK, leads)
}

func (h *LeadHandler) ExportLeads(c *gin.Context) {
	leads, err := h.Store.ListLeads(c.Request.Context(), OwnerID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=leads.csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"Instagram ID", "Username", "Name", "Email", "Phone", "Tags", "Source", "Interactions", "First Interaction", "Last Interaction"})
	for _, l := range leads {
		w.Write([]string{
			l.ExternalUserID,
			l.ExternalUsername,
			l.Name,
			l.Email,
			l.Phone,
			l.Tags,
			string(l.SourceTriggerType),
			strconv.Itoa(l.InteractionCount),
			l.FirstInteractionAt.UTC().Format(time.RFC3339),
			l.LastInteractionAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Error().Err(err).Msg("failed to write leads export")
	}
}
