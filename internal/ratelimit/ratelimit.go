// Package ratelimit enforces per-campaign hourly and daily trigger limits.
//
// Counts are derived from the trigger table on every call, so there is no
// separate counter to drift.
package ratelimit

import (
	"context"
	"time"

	"ig-automation/internal/models"

	"github.com/rs/zerolog/log"
)

// counted are the statuses that consume quota.
var counted = []models.TriggerStatus{models.StatusCompleted, models.StatusProcessing}

type TriggerCounter interface {
	CountTriggers(ctx context.Context, campaignID string, statuses []models.TriggerStatus, since time.Time) (int64, error)
}

type Limiter struct {
	store TriggerCounter
	now   func() time.Time
}

func New(store TriggerCounter) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow reports whether the campaign is still under both limits. A limit of
// zero or less is unlimited. Query errors allow processing.
func (l *Limiter) Allow(ctx context.Context, c *models.Campaign) bool {
	now := l.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	checks := []struct {
		window string
		limit  int
		since  time.Time
	}{
		{"hourly", c.HourlyLimit, now.Add(-time.Hour)},
		{"daily", c.DailyLimit, dayStart},
	}

	for _, chk := range checks {
		if chk.limit <= 0 {
			continue
		}
		n, err := l.store.CountTriggers(ctx, c.ID, counted, chk.since)
		if err != nil {
			log.Warn().Err(err).Str("campaign_id", c.ID).Str("window", chk.window).
				Msg("rate limit query failed, allowing")
			return true
		}
		if n >= int64(chk.limit) {
			log.Info().Str("campaign_id", c.ID).Str("window", chk.window).
				Int64("count", n).Int("limit", chk.limit).Msg("rate limit reached")
			return false
		}
	}
	return true
}
