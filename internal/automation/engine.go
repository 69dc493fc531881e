// Package automation turns pending triggers into outbound messages, either a
// campaign's simple action or a walk over its conversation flow.
package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"ig-automation/internal/analytics"
	"ig-automation/internal/config"
	"ig-automation/internal/leads"
	"ig-automation/internal/models"
	"ig-automation/internal/ratelimit"
	"ig-automation/internal/store"
)

var (
	ErrTriggerNotOwned  = errors.New("trigger not found")
	ErrCampaignNotOwned = errors.New("campaign not found")
	ErrNotAwaitingInput = errors.New("trigger is not awaiting input")
)

// Messenger sends outbound messages through the provider.
type Messenger interface {
	SendDirectMessage(ctx context.Context, acct *models.InstagramAccount, recipientID, text string) (string, error)
	ReplyToComment(ctx context.Context, acct *models.InstagramAccount, commentID, text string) (string, error)
}

// Scheduler wakes a delayed flow at the given time. Resumes are always
// recorded in scheduled_resumes; a Scheduler adds an active wake-up on top of
// the poller and the resume endpoint.
type Scheduler interface {
	ScheduleResume(ctx context.Context, triggerID string, at time.Time) error
}

// Notifier receives trigger status changes.
type Notifier interface {
	NotifyTrigger(triggerID, campaignID string, status models.TriggerStatus, errMsg string)
}

type Options struct {
	BatchSize          int
	MaxSteps           int
	DelayMode          string
	InlineDelayCeiling time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:          cfg.BatchSize,
		MaxSteps:           cfg.MaxFlowSteps,
		DelayMode:          cfg.DelayMode,
		InlineDelayCeiling: cfg.InlineDelayCeiling,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = 100
	}
	if o.DelayMode == "" {
		o.DelayMode = config.DelayModeDeferred
	}
	if o.InlineDelayCeiling <= 0 {
		o.InlineDelayCeiling = 60 * time.Second
	}
	return o
}

type Engine struct {
	Store     *store.Store
	Client    Messenger
	Limiter   *ratelimit.Limiter
	Leads     *leads.Service
	Analytics *analytics.Recorder
	Scheduler Scheduler
	Notifier  Notifier

	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	inflight sync.Map // trigger id -> struct{}
}

func NewEngine(s *store.Store, client Messenger, opts Options) *Engine {
	return &Engine{
		Store:     s,
		Client:    client,
		Limiter:   ratelimit.New(s),
		Leads:     leads.NewService(s),
		Analytics: analytics.NewRecorder(s),
		opts:      opts.withDefaults(),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// acquire marks the trigger as being worked on by this process.
func (e *Engine) acquire(id string) bool {
	_, busy := e.inflight.LoadOrStore(id, struct{}{})
	return !busy
}

func (e *Engine) release(id string) {
	e.inflight.Delete(id)
}

func (e *Engine) notify(t *models.Trigger) {
	if e.Notifier == nil {
		return
	}
	msg := ""
	if t.ErrorMessage != nil {
		msg = *t.ErrorMessage
	}
	e.Notifier.NotifyTrigger(t.ID, t.CampaignID, t.Status, msg)
}
