package jobs

import (
	"context"
	"sync"
	"time"

	"ig-automation/internal/automation"

	"github.com/rs/zerolog/log"
)

// DueRunner drains due delay resumes. nil campaignIDs means every campaign.
type DueRunner interface {
	RunDueResumes(ctx context.Context, campaignIDs []string) (automation.Summary, error)
}

// Poller periodically runs due resumes.
type Poller struct {
	runner   DueRunner
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewPoller(runner DueRunner, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{runner: runner, interval: interval}
}

// Start runs the loop in a goroutine until Stop or ctx cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(ctx, p.stop, p.done)
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()
	<-done
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(p.interval)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one drain cycle.
func (p *Poller) Tick(ctx context.Context) {
	sum, err := p.runner.RunDueResumes(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("resume poll failed")
		return
	}
	if sum.Processed > 0 {
		log.Info().Int("resumed", sum.Processed).Int("failed", sum.Failed).Msg("resumed delayed flows")
	}
}
