package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"ig-automation/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccumulatesPerDay(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	day := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)
	r := NewRecorder(s)
	r.now = func() time.Time { return day }

	r.Record(ctx, "c1", Counters{Triggers: 1, FlowCompletions: 1})
	r.Record(ctx, "c1", Counters{DMsSent: 1})
	r.Record(ctx, "c1", Counters{Triggers: 1, FlowDropoffs: 1})
	r.Record(ctx, "c1", Counters{})

	rows, err := s.ListAnalytics(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-10-16", rows[0].Day)
	assert.EqualValues(t, 2, rows[0].TriggerCount)
	assert.EqualValues(t, 1, rows[0].DMsSent)
	assert.EqualValues(t, 1, rows[0].FlowCompletions)
	assert.EqualValues(t, 1, rows[0].FlowDropoffs)
}

type failingStore struct{ calls int }

func (f *failingStore) IncrementAnalytics(context.Context, string, string, map[string]int64) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecordSwallowsErrors(t *testing.T) {
	f := &failingStore{}
	NewRecorder(f).Record(context.Background(), "c1", Counters{Triggers: 1})
	assert.Equal(t, 1, f.calls)
}
