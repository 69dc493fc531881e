package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"ig-automation/internal/models"
	"ig-automation/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertIsIdempotentPerUser(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	c := storetest.Campaign(t, s, "owner", nil, nil)
	svc := NewService(s)

	first := storetest.Trigger(t, s, c.ID, "u1", nil)
	second := storetest.Trigger(t, s, c.ID, "u1", nil)

	id1 := svc.Upsert(ctx, first, c)
	id2 := svc.Upsert(ctx, second, c)
	require.NotNil(t, id1)
	require.NotNil(t, id2)
	assert.Equal(t, *id1, *id2)

	all, err := s.ListLeads(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].InteractionCount)
	assert.Equal(t, models.TriggerComment, all[0].SourceTriggerType)
	assert.Equal(t, c.ID, all[0].SourceCampaignID)
	assert.False(t, all[0].LastInteractionAt.Before(all[0].FirstInteractionAt))
}

func TestUpsertSeparatesOwners(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	svc := NewService(s)

	a := storetest.Campaign(t, s, "owner-a", nil, nil)
	b := storetest.Campaign(t, s, "owner-b", nil, nil)
	require.NotNil(t, svc.Upsert(ctx, storetest.Trigger(t, s, a.ID, "u1", nil), a))
	require.NotNil(t, svc.Upsert(ctx, storetest.Trigger(t, s, b.ID, "u1", nil), b))

	la, err := s.ListLeads(ctx, "owner-a")
	require.NoError(t, err)
	lb, err := s.ListLeads(ctx, "owner-b")
	require.NoError(t, err)
	assert.Len(t, la, 1)
	assert.Len(t, lb, 1)
}

type brokenRepo struct{}

func (brokenRepo) FindLead(context.Context, string, string) (*models.Lead, error) {
	return nil, errors.New("connection refused")
}
func (brokenRepo) CreateLead(context.Context, *models.Lead) error     { return nil }
func (brokenRepo) TouchLead(context.Context, string, time.Time) error { return nil }
func (brokenRepo) UpdateLead(context.Context, string, map[string]interface{}) error {
	return nil
}

func TestUpsertErrorYieldsNil(t *testing.T) {
	svc := NewService(brokenRepo{})
	id := svc.Upsert(context.Background(), &models.Trigger{ID: "t1"}, &models.Campaign{OwnerID: "o"})
	assert.Nil(t, id)
}

func TestApplyCapture(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	c := storetest.Campaign(t, s, "owner", nil, nil)
	svc := NewService(s)

	id := svc.Upsert(ctx, storetest.Trigger(t, s, c.ID, "u1", nil), c)
	require.NotNil(t, id)

	svc.ApplyCapture(ctx, id, "email", "a@b.co")
	svc.ApplyCapture(ctx, id, "favourite_colour", "blue")

	l, err := s.FindLead(ctx, "owner", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", l.Email)
}
