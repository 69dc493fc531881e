// Package analytics records best-effort daily campaign counters.
package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Counters are deltas applied to one (campaign, day) row.
type Counters struct {
	Triggers        int64
	DMsSent         int64
	DMsDelivered    int64
	DMsFailed       int64
	FlowCompletions int64
	FlowDropoffs    int64
}

func (c Counters) columns() map[string]int64 {
	return map[string]int64{
		"trigger_count":    c.Triggers,
		"dms_sent":         c.DMsSent,
		"dms_delivered":    c.DMsDelivered,
		"dms_failed":       c.DMsFailed,
		"flow_completions": c.FlowCompletions,
		"flow_dropoffs":    c.FlowDropoffs,
	}
}

func (c Counters) empty() bool {
	return c == Counters{}
}

type Incrementer interface {
	IncrementAnalytics(ctx context.Context, campaignID, day string, deltas map[string]int64) error
}

type Recorder struct {
	store Incrementer
	now   func() time.Time
}

func NewRecorder(store Incrementer) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record adds the counters to today's (UTC) row for the campaign. The store
// applies the increment in a single upsert. Failures are only logged.
func (r *Recorder) Record(ctx context.Context, campaignID string, c Counters) {
	if campaignID == "" || c.empty() {
		return
	}
	day := r.now().UTC().Format("2006-01-02")
	if err := r.store.IncrementAnalytics(ctx, campaignID, day, c.columns()); err != nil {
		log.Error().Err(err).Str("campaign_id", campaignID).Str("day", day).Msg("failed to record analytics")
	}
}
