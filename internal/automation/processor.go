package automation

import (
	"context"
	"errors"
	"fmt"

	"ig-automation/internal/analytics"
	"ig-automation/internal/flow"
	"ig-automation/internal/models"
	"ig-automation/internal/store"
	"ig-automation/internal/template"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

const (
	reasonNoAction       = "no action configured"
	reasonRateLimited    = "rate limit exceeded"
	reasonNoAccount      = "account not configured"
	reasonNoCampaign     = "campaign not found"
	reasonAlreadyRunning = "trigger already processing"
	reasonSuspended      = "trigger is suspended awaiting resume"
)

// Result is the outcome of one trigger run.
type Result struct {
	TriggerID string               `json:"triggerId"`
	Success   bool                 `json:"success"`
	Status    models.TriggerStatus `json:"status"`
	Error     string               `json:"error,omitempty"`
}

func resultOf(t *models.Trigger) *Result {
	r := &Result{TriggerID: t.ID, Status: t.Status, Success: t.Status == models.StatusCompleted}
	if t.ErrorMessage != nil {
		r.Error = *t.ErrorMessage
	}
	return r
}

// run carries everything a single execution needs.
type run struct {
	trigger  *models.Trigger
	campaign *models.Campaign
	account  *models.InstagramAccount
	graph    *flow.Graph
	state    map[string]interface{}
}

// Process takes a trigger through to a terminal state, or to a suspension
// point for flows waiting on a delay or on user input. Calling it on a
// terminal trigger returns the stored outcome without side effects.
func (e *Engine) Process(ctx context.Context, triggerID string) (*Result, error) {
	if !e.acquire(triggerID) {
		return &Result{TriggerID: triggerID, Status: models.StatusProcessing, Error: reasonAlreadyRunning}, nil
	}
	defer e.release(triggerID)

	t, err := e.Store.GetTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return resultOf(t), nil
	}

	logger := log.With().Str("trigger_id", t.ID).Str("campaign_id", t.CampaignID).Logger()

	c, err := e.Store.GetCampaign(ctx, t.CampaignID)
	if errors.Is(err, store.ErrNotFound) {
		return e.terminate(ctx, t, models.StatusFailed, reasonNoCampaign)
	}
	if err != nil {
		return nil, err
	}

	if t.Status == models.StatusProcessing {
		return e.recoverFlow(ctx, t, c)
	}

	// Mode resolution is simple-action first.
	var graph *flow.Graph
	if !c.HasSimpleAction() {
		graph, err = e.loadGraph(ctx, c)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load flow")
			return e.terminate(ctx, t, models.StatusFailed, err.Error())
		}
		if graph.Empty() {
			return e.terminate(ctx, t, models.StatusSkipped, reasonNoAction)
		}
	}

	if !e.Limiter.Allow(ctx, c) {
		return e.terminate(ctx, t, models.StatusSkipped, reasonRateLimited)
	}

	acct, err := e.account(ctx, c)
	if err != nil {
		logger.Warn().Err(err).Msg("messaging account unavailable")
		return e.terminate(ctx, t, models.StatusFailed, reasonNoAccount)
	}

	t.LeadID = e.Leads.Upsert(ctx, t, c)

	t.Status = models.StatusProcessing
	if err := e.Store.UpdateTrigger(ctx, t.ID, map[string]interface{}{
		"status":  models.StatusProcessing,
		"lead_id": t.LeadID,
	}); err != nil {
		return nil, fmt.Errorf("failed to mark trigger processing: %w", err)
	}
	e.notify(t)

	r := &run{trigger: t, campaign: c, account: acct, graph: graph, state: copyState(t.FlowState)}

	if graph == nil {
		logger.Info().Str("action", c.Action).Msg("executing simple action")
		return e.finish(ctx, r, e.executeSimpleAction(ctx, r))
	}

	start, err := graph.StartNode()
	if err != nil {
		return e.finish(ctx, r, err)
	}
	logger.Info().Str("flow_id", graph.ID).Str("start_node", start.NodeID()).Msg("starting flow")
	return e.continueFlow(ctx, r, start.NodeID())
}

// recoverFlow re-enters a flow left PROCESSING by a crash. Flows suspended on
// a still pending resume and simple actions, which have no checkpoint, are
// left alone.
func (e *Engine) recoverFlow(ctx context.Context, t *models.Trigger, c *models.Campaign) (*Result, error) {
	reason := suspendedOn(t.FlowState)
	if reason != "" {
		pending, err := e.Store.HasPendingResume(ctx, t.ID, reason)
		if err != nil {
			return nil, err
		}
		if pending {
			return &Result{TriggerID: t.ID, Status: t.Status, Error: reasonSuspended}, nil
		}
		// The resume was claimed but the run died before it checkpointed.
		log.Warn().Str("trigger_id", t.ID).Str("reason", reason).Msg("suspended trigger has no pending resume")
	}
	if c.HasSimpleAction() || c.FlowID == nil {
		return &Result{TriggerID: t.ID, Status: t.Status, Error: reasonAlreadyRunning}, nil
	}

	r, err := e.prepareRun(ctx, t, c)
	if err != nil {
		return e.finish(ctx, &run{trigger: t, campaign: c}, err)
	}
	delete(r.state, stateSuspended)
	delete(r.state, stateRetries)

	from := ""
	if t.CurrentNodeID != nil {
		from = *t.CurrentNodeID
	} else {
		start, err := r.graph.StartNode()
		if err != nil {
			return e.finish(ctx, r, err)
		}
		from = start.NodeID()
	}
	log.Warn().Str("trigger_id", t.ID).Str("node_id", from).Msg("recovering interrupted flow from checkpoint")
	return e.continueFlow(ctx, r, from)
}

// prepareRun loads the graph and account for a trigger that is already PROCESSING.
func (e *Engine) prepareRun(ctx context.Context, t *models.Trigger, c *models.Campaign) (*run, error) {
	graph, err := e.loadGraph(ctx, c)
	if err != nil {
		return nil, err
	}
	if graph.Empty() {
		return nil, flow.ErrNoStartNode
	}
	acct, err := e.account(ctx, c)
	if err != nil {
		return nil, errors.New(reasonNoAccount)
	}
	return &run{trigger: t, campaign: c, account: acct, graph: graph, state: copyState(t.FlowState)}, nil
}

// continueFlow walks from the given node and finalizes unless the walk suspended.
func (e *Engine) continueFlow(ctx context.Context, r *run, from string) (*Result, error) {
	suspended, err := e.walk(ctx, r, from)
	if err == nil && suspended {
		return &Result{TriggerID: r.trigger.ID, Success: true, Status: models.StatusProcessing}, nil
	}
	return e.finish(ctx, r, err)
}

func (e *Engine) loadGraph(ctx context.Context, c *models.Campaign) (*flow.Graph, error) {
	if c.FlowID == nil || *c.FlowID == "" {
		return nil, nil
	}
	f, err := e.Store.GetFlow(ctx, *c.FlowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flow.FromModel(f)
}

func (e *Engine) account(ctx context.Context, c *models.Campaign) (*models.InstagramAccount, error) {
	if c.AccountID == nil || *c.AccountID == "" {
		return nil, errors.New("campaign has no linked account")
	}
	acct, err := e.Store.GetAccount(ctx, *c.AccountID)
	if err != nil {
		return nil, err
	}
	if acct.AccessToken == "" {
		return nil, errors.New("account has no access token")
	}
	return acct, nil
}

func (e *Engine) executeSimpleAction(ctx context.Context, r *run) error {
	text := template.Personalize(r.campaign.MessageTemplate, r.trigger)
	switch r.campaign.Action {
	case models.ActionSendDM:
		return e.sendDM(ctx, r, text, models.MessageText)
	case models.ActionReplyComment:
		return e.replyComment(ctx, r, text)
	default:
		return fmt.Errorf("unsupported action %q", r.campaign.Action)
	}
}

// finish writes the terminal status of a run that reached PROCESSING and
// records its analytics.
func (e *Engine) finish(ctx context.Context, r *run, runErr error) (*Result, error) {
	t := r.trigger
	counters := analytics.Counters{Triggers: 1}
	status := models.StatusCompleted
	var errMsg *string
	if runErr != nil {
		status = models.StatusFailed
		msg := runErr.Error()
		errMsg = &msg
		counters.FlowDropoffs = 1
		log.Error().Err(runErr).Str("trigger_id", t.ID).Msg("trigger failed")
	} else {
		counters.FlowCompletions = 1
		log.Info().Str("trigger_id", t.ID).Msg("trigger completed")
	}

	res, err := e.setTerminal(ctx, t, status, errMsg)
	if err != nil {
		return nil, err
	}
	e.Analytics.Record(ctx, t.CampaignID, counters)
	return res, nil
}

// terminate ends a trigger before any processing happened.
func (e *Engine) terminate(ctx context.Context, t *models.Trigger, status models.TriggerStatus, reason string) (*Result, error) {
	log.Info().Str("trigger_id", t.ID).Str("status", string(status)).Str("reason", reason).Msg("trigger not processed")
	return e.setTerminal(ctx, t, status, &reason)
}

func (e *Engine) setTerminal(ctx context.Context, t *models.Trigger, status models.TriggerStatus, errMsg *string) (*Result, error) {
	now := e.now().UTC()
	state := copyState(t.FlowState)
	delete(state, stateSuspended)
	delete(state, stateRetries)
	delete(state, stateSteps)

	if err := e.Store.UpdateTrigger(ctx, t.ID, map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"processed_at":  now,
		"flow_state":    datatypes.JSONMap(state),
	}); err != nil {
		return nil, fmt.Errorf("failed to finalize trigger %s: %w", t.ID, err)
	}
	t.Status = status
	t.ErrorMessage = errMsg
	t.ProcessedAt = &now
	e.notify(t)
	return resultOf(t), nil
}
