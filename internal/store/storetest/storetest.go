// Package storetest provides an in-memory store and fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ig-automation/internal/database"
	"ig-automation/internal/models"
	"ig-automation/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// New returns a migrated store backed by a private in-memory sqlite database.
func New(t testing.TB) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return store.New(db)
}

func Account(t testing.TB, s *store.Store, ownerID string) *models.InstagramAccount {
	t.Helper()
	a := &models.InstagramAccount{
		OwnerID:     ownerID,
		ExternalID:  "ig-" + uuid.NewString()[:8],
		Username:    "brand",
		AccessToken: "token",
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

// Campaign creates an ACTIVE campaign. mutate may adjust fields before insert.
func Campaign(t testing.TB, s *store.Store, ownerID string, acct *models.InstagramAccount, mutate func(*models.Campaign)) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		OwnerID:     ownerID,
		Name:        "campaign",
		TriggerType: models.TriggerComment,
		Status:      models.CampaignActive,
	}
	if acct != nil {
		c.AccountID = &acct.ID
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, s.CreateCampaign(context.Background(), c))
	return c
}

// Trigger creates a PENDING trigger for the campaign.
func Trigger(t testing.TB, s *store.Store, campaignID, userID string, mutate func(*models.Trigger)) *models.Trigger {
	t.Helper()
	tr := &models.Trigger{
		CampaignID:       campaignID,
		ExternalUserID:   userID,
		ExternalUsername: "alex",
		Type:             models.TriggerComment,
		SourceID:         "c-" + uuid.NewString()[:8],
		SourceText:       "price?",
		Status:           models.StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	if mutate != nil {
		mutate(tr)
	}
	require.NoError(t, s.CreateTrigger(context.Background(), tr))
	return tr
}

// NodeSpec is a compact node declaration for Flow.
type NodeSpec struct {
	ID   string
	Type string
	Data string
}

// EdgeSpec is a compact edge declaration for Flow.
type EdgeSpec struct {
	Source, Target, Handle string
}

// Flow stores a flow graph and returns its id.
func Flow(t testing.TB, s *store.Store, ownerID string, nodes []NodeSpec, edges []EdgeSpec) string {
	t.Helper()
	f := &models.Flow{OwnerID: ownerID, Name: "flow"}
	for i, n := range nodes {
		data := n.Data
		if data == "" {
			data = "{}"
		}
		f.Nodes = append(f.Nodes, models.FlowNode{NodeID: n.ID, Type: n.Type, SortOrder: i, Data: datatypes.JSON(data)})
	}
	for i, e := range edges {
		f.Edges = append(f.Edges, models.FlowEdge{
			EdgeID:       fmt.Sprintf("e%d", i),
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.Handle,
		})
	}
	require.NoError(t, s.SaveFlow(context.Background(), f))
	return f.ID
}
