package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ig-automation/internal/config"
	"ig-automation/internal/flow"
	"ig-automation/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// Reserved flow-state keys.
const (
	stateSuspended = "_suspended"
	stateRetries   = "_retries"
	stateSteps     = "_steps"
)

func copyState(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func suspendedOn(state map[string]interface{}) string {
	v, _ := state[stateSuspended].(string)
	return v
}

// walk executes nodes starting at from until the flow ends, suspends or
// fails. The MaxSteps budget covers the whole trigger: executed steps are
// carried in flow-state across suspensions.
func (e *Engine) walk(ctx context.Context, r *run, from string) (suspended bool, err error) {
	current := from
	for step := stateInt(r.state, stateSteps); step < e.opts.MaxSteps; step++ {
		node, ok := r.graph.Node(current)
		if !ok {
			return false, fmt.Errorf("%w: %s", flow.ErrNodeNotFound, current)
		}
		logger := log.With().Str("trigger_id", r.trigger.ID).
			Str("node_id", node.NodeID()).Str("node_type", string(node.Kind())).Logger()
		logger.Debug().Int("step", step).Msg("executing node")

		res, err := e.executeNode(ctx, r, node)
		if err != nil {
			r.state[stateSteps] = step + 1
			if cpErr := e.checkpoint(ctx, r, node.NodeID()); cpErr != nil {
				logger.Error().Err(cpErr).Msg("failed to save checkpoint")
			}
			return false, err
		}
		for k, v := range res.state {
			r.state[k] = v
		}
		r.state[stateSteps] = step + 1

		if res.awaitInput {
			return true, e.suspendForInput(ctx, r, node.NodeID())
		}
		if res.end {
			return false, e.checkpoint(ctx, r, node.NodeID())
		}

		next := res.next
		if next == "" {
			var found bool
			if next, found = r.graph.Next(node.NodeID(), res.handle); !found {
				logger.Debug().Msg("no outgoing edge, flow complete")
				return false, e.checkpoint(ctx, r, node.NodeID())
			}
		}

		if res.wait > 0 {
			if e.opts.DelayMode == config.DelayModeDeferred {
				return true, e.suspendForDelay(ctx, r, next, res.wait)
			}
			if err := e.checkpoint(ctx, r, next); err != nil {
				return false, err
			}
			wait := res.wait
			if wait > e.opts.InlineDelayCeiling {
				logger.Warn().Dur("configured", wait).Dur("ceiling", e.opts.InlineDelayCeiling).
					Msg("delay capped at inline ceiling")
				wait = e.opts.InlineDelayCeiling
			}
			if err := e.sleep(ctx, wait); err != nil {
				return false, err
			}
		} else if err := e.checkpoint(ctx, r, next); err != nil {
			return false, err
		}
		current = next
	}
	return false, flow.ErrMaxIterations
}

// checkpoint persists the resumption point of the run.
func (e *Engine) checkpoint(ctx context.Context, r *run, nodeID string) error {
	if err := e.Store.SaveCheckpoint(ctx, r.trigger.ID, nodeID, r.state); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	id := nodeID
	r.trigger.CurrentNodeID = &id
	r.trigger.FlowState = datatypes.JSONMap(copyState(r.state))
	return nil
}

func (e *Engine) suspendForDelay(ctx context.Context, r *run, next string, wait time.Duration) error {
	r.state[stateSuspended] = models.ResumeDelay
	if err := e.checkpoint(ctx, r, next); err != nil {
		return err
	}
	at := e.now().UTC().Add(wait)
	if err := e.Store.ScheduleResume(ctx, &models.ScheduledResume{
		TriggerID:  r.trigger.ID,
		CampaignID: r.trigger.CampaignID,
		Reason:     models.ResumeDelay,
		ResumeAt:   &at,
	}); err != nil {
		return fmt.Errorf("failed to schedule resume: %w", err)
	}
	if e.Scheduler != nil {
		if err := e.Scheduler.ScheduleResume(ctx, r.trigger.ID, at); err != nil {
			// The stored row is still picked up by the poller.
			log.Error().Err(err).Str("trigger_id", r.trigger.ID).Msg("failed to enqueue resume job")
		}
	}
	log.Info().Str("trigger_id", r.trigger.ID).Str("next_node", next).Time("resume_at", at).Msg("flow suspended for delay")
	return nil
}

func (e *Engine) suspendForInput(ctx context.Context, r *run, captureNodeID string) error {
	r.state[stateSuspended] = models.ResumeCapture
	if err := e.checkpoint(ctx, r, captureNodeID); err != nil {
		return err
	}
	if err := e.Store.ScheduleResume(ctx, &models.ScheduledResume{
		TriggerID:  r.trigger.ID,
		CampaignID: r.trigger.CampaignID,
		Reason:     models.ResumeCapture,
	}); err != nil {
		return fmt.Errorf("failed to record awaited input: %w", err)
	}
	log.Info().Str("trigger_id", r.trigger.ID).Str("node_id", captureNodeID).Msg("flow suspended awaiting input")
	return nil
}

func stateInt(state map[string]interface{}, key string) int {
	switch v := state[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		// datatypes.JSONMap decodes numbers with UseNumber.
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
