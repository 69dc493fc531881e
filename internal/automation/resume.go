package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ig-automation/internal/flow"
	"ig-automation/internal/models"

	"github.com/rs/zerolog/log"
)

const maxCaptureAttempts = 3

// ResumeDelayed continues a flow that was suspended on a delay node. It is
// safe to call more than once: only the caller that claims the pending
// resume row continues the walk.
func (e *Engine) ResumeDelayed(ctx context.Context, triggerID string) (*Result, error) {
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
	if t.Status != models.StatusProcessing || suspendedOn(t.FlowState) != models.ResumeDelay || t.CurrentNodeID == nil {
		return &Result{TriggerID: t.ID, Status: t.Status, Error: "trigger is not waiting on a delay"}, nil
	}

	claimed, err := e.Store.CloseResumes(ctx, t.ID, models.ResumeDelay, models.ResumeDone)
	if err != nil {
		return nil, err
	}
	if claimed == 0 {
		return &Result{TriggerID: t.ID, Status: t.Status, Error: "resume already claimed"}, nil
	}

	c, err := e.Store.GetCampaign(ctx, t.CampaignID)
	if err != nil {
		return e.finish(ctx, &run{trigger: t}, fmt.Errorf("failed to load campaign: %w", err))
	}
	r, err := e.prepareRun(ctx, t, c)
	if err != nil {
		return e.finish(ctx, &run{trigger: t, campaign: c}, err)
	}

	from := *t.CurrentNodeID
	delete(r.state, stateSuspended)
	if err := e.checkpoint(ctx, r, from); err != nil {
		return e.finish(ctx, r, err)
	}
	log.Info().Str("trigger_id", t.ID).Str("node_id", from).Msg("resuming flow after delay")
	return e.continueFlow(ctx, r, from)
}

// ResumeWithInput delivers a user's reply to a flow suspended on a capture
// node. Invalid email or phone replies are re-prompted up to
// maxCaptureAttempts before the trigger fails.
func (e *Engine) ResumeWithInput(ctx context.Context, triggerID, input string) (*Result, error) {
	if !e.acquire(triggerID) {
		return &Result{TriggerID: triggerID, Status: models.StatusProcessing, Error: reasonAlreadyRunning}, nil
	}
	defer e.release(triggerID)

	t, err := e.Store.GetTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusProcessing || suspendedOn(t.FlowState) != models.ResumeCapture || t.CurrentNodeID == nil {
		return nil, ErrNotAwaitingInput
	}

	c, err := e.Store.GetCampaign(ctx, t.CampaignID)
	if err != nil {
		return nil, err
	}
	r, err := e.prepareRun(ctx, t, c)
	if err != nil {
		return e.finish(ctx, &run{trigger: t, campaign: c}, err)
	}

	node, ok := r.graph.Node(*t.CurrentNodeID)
	capture, isCapture := node.(flow.CaptureNode)
	if !ok || !isCapture {
		return e.finish(ctx, r, fmt.Errorf("%w: capture node %s", flow.ErrNodeNotFound, *t.CurrentNodeID))
	}
	logger := log.With().Str("trigger_id", t.ID).Str("node_id", capture.NodeID()).Logger()

	value := strings.TrimSpace(input)
	if problem := validateCapture(capture.Field, value); problem != "" {
		attempts := stateInt(r.state, stateRetries) + 1
		if attempts >= maxCaptureAttempts {
			if _, err := e.Store.CloseResumes(ctx, t.ID, models.ResumeCapture, models.ResumeCancelled); err != nil {
				logger.Error().Err(err).Msg("failed to cancel awaited input")
			}
			return e.finish(ctx, r, errors.New("too many invalid input attempts"))
		}
		r.state[stateRetries] = attempts
		if err := e.checkpoint(ctx, r, capture.NodeID()); err != nil {
			return nil, err
		}
		if err := e.sendDM(ctx, r, problem, models.MessageText); err != nil {
			logger.Warn().Err(err).Msg("failed to send re-prompt")
		}
		logger.Info().Int("attempt", attempts).Msg("invalid capture input")
		return &Result{TriggerID: t.ID, Status: t.Status, Error: problem}, nil
	}

	claimed, err := e.Store.CloseResumes(ctx, t.ID, models.ResumeCapture, models.ResumeDone)
	if err != nil {
		return nil, err
	}
	if claimed == 0 {
		return nil, ErrNotAwaitingInput
	}

	delete(r.state, stateSuspended)
	delete(r.state, stateRetries)
	r.state[capture.StateKey()] = value
	e.Leads.ApplyCapture(ctx, t.LeadID, string(capture.Field), value)
	logger.Info().Str("field", string(capture.Field)).Msg("captured input")

	next, found := r.graph.Next(capture.NodeID(), "")
	if !found {
		if err := e.checkpoint(ctx, r, capture.NodeID()); err != nil {
			return e.finish(ctx, r, err)
		}
		return e.finish(ctx, r, nil)
	}
	if err := e.checkpoint(ctx, r, next); err != nil {
		return e.finish(ctx, r, err)
	}
	return e.continueFlow(ctx, r, next)
}

// validateCapture returns the re-prompt text for an unacceptable reply.
func validateCapture(field flow.CaptureField, value string) string {
	switch field {
	case flow.CaptureEmail:
		at := strings.Index(value, "@")
		if at <= 0 || !strings.Contains(value[at:], ".") || strings.ContainsAny(value, " \t") {
			return "Please enter a valid email address."
		}
	case flow.CapturePhone:
		digits := 0
		for _, ch := range value {
			switch {
			case ch >= '0' && ch <= '9':
				digits++
			case strings.ContainsRune("+-() .", ch):
			default:
				return "Please enter a valid phone number."
			}
		}
		if digits < 7 {
			return "Please enter a valid phone number."
		}
	default:
		if value == "" {
			return "Please enter a reply."
		}
	}
	return ""
}
