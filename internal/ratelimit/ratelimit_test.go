package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"ig-automation/internal/models"
	"ig-automation/internal/store/storetest"

	"github.com/stretchr/testify/assert"
)

func TestHourlyBoundary(t *testing.T) {
	s := storetest.New(t)
	c := storetest.Campaign(t, s, "owner", nil, func(c *models.Campaign) { c.HourlyLimit = 3 })
	for _, u := range []string{"u1", "u2", "u3"} {
		storetest.Trigger(t, s, c.ID, u, func(tr *models.Trigger) { tr.Status = models.StatusCompleted })
	}
	storetest.Trigger(t, s, c.ID, "u5", func(tr *models.Trigger) { tr.Status = models.StatusSkipped })

	l := New(s)
	assert.False(t, l.Allow(context.Background(), c))

	c.HourlyLimit = 4
	assert.True(t, l.Allow(context.Background(), c))
}

func TestDailyWindowStartsAtUTCMidnight(t *testing.T) {
	s := storetest.New(t)
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	c := storetest.Campaign(t, s, "owner", nil, func(c *models.Campaign) { c.DailyLimit = 1 })
	storetest.Trigger(t, s, c.ID, "u1", func(tr *models.Trigger) {
		tr.Status = models.StatusCompleted
		tr.CreatedAt = midnight.Add(-time.Minute)
	})

	l := New(s)
	assert.True(t, l.Allow(context.Background(), c))

	storetest.Trigger(t, s, c.ID, "u2", func(tr *models.Trigger) {
		tr.Status = models.StatusProcessing
		tr.CreatedAt = now
	})
	assert.False(t, l.Allow(context.Background(), c))
}

func TestUnlimited(t *testing.T) {
	s := storetest.New(t)
	c := storetest.Campaign(t, s, "owner", nil, nil)
	storetest.Trigger(t, s, c.ID, "u1", func(tr *models.Trigger) { tr.Status = models.StatusCompleted })
	assert.True(t, New(s).Allow(context.Background(), c))
}

type failingCounter struct{}

func (failingCounter) CountTriggers(context.Context, string, []models.TriggerStatus, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestFailsOpen(t *testing.T) {
	c := &models.Campaign{ID: "c1", HourlyLimit: 1, DailyLimit: 1}
	assert.True(t, New(failingCounter{}).Allow(context.Background(), c))
}
