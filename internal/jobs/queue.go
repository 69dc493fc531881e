// Package jobs wakes delayed flows, either through a River queue on postgres
// or through a ticker that drains due rows from scheduled_resumes.
package jobs

import (
	"context"
	"fmt"
	"time"

	"ig-automation/internal/automation"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"
)

// Resumer continues a flow suspended on a delay.
type Resumer interface {
	ResumeDelayed(ctx context.Context, triggerID string) (*automation.Result, error)
}

// ResumeFlowArgs is the payload of a delayed flow resumption.
type ResumeFlowArgs struct {
	TriggerID string `json:"trigger_id"`
}

func (ResumeFlowArgs) Kind() string {
	return "resume_flow"
}

type ResumeFlowWorker struct {
	river.WorkerDefaults[ResumeFlowArgs]
	resumer Resumer
}

func (w *ResumeFlowWorker) Work(ctx context.Context, job *river.Job[ResumeFlowArgs]) error {
	res, err := w.resumer.ResumeDelayed(ctx, job.Args.TriggerID)
	if err != nil {
		return fmt.Errorf("failed to resume trigger %s: %w", job.Args.TriggerID, err)
	}
	log.Info().Str("trigger_id", res.TriggerID).Str("status", string(res.Status)).
		Int64("job_id", job.ID).Msg("resume job finished")
	return nil
}

// Queue is a River client dedicated to flow resumption.
type Queue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// NewQueue connects to postgres and registers the resume worker. The
// resumer is usually the automation engine.
func NewQueue(ctx context.Context, databaseURL string, maxWorkers int, resumer Resumer) (*Queue, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &ResumeFlowWorker{resumer: resumer})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return &Queue{client: client, pool: pool}, nil
}

// Migrate installs or upgrades River's own tables.
func (q *Queue) Migrate(ctx context.Context) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(q.pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	return nil
}

func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

func (q *Queue) Stop(ctx context.Context) error {
	err := q.client.Stop(ctx)
	q.pool.Close()
	return err
}

// ScheduleResume enqueues a resume job that becomes available at the given time.
func (q *Queue) ScheduleResume(ctx context.Context, triggerID string, at time.Time) error {
	_, err := q.client.Insert(ctx, ResumeFlowArgs{TriggerID: triggerID}, &river.InsertOpts{ScheduledAt: at})
	if err != nil {
		return fmt.Errorf("failed to queue resume job: %w", err)
	}
	return nil
}
