package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ig-automation/internal/analytics"
	"ig-automation/internal/flow"
	"ig-automation/internal/models"
	"ig-automation/internal/template"

	"github.com/rs/zerolog/log"
)

// stepResult carries the routing hints of one executed node.
type stepResult struct {
	state      map[string]interface{}
	next       string
	handle     string
	wait       time.Duration
	end        bool
	awaitInput bool
}

func (e *Engine) executeNode(ctx context.Context, r *run, node flow.Node) (stepResult, error) {
	switch n := node.(type) {
	case flow.MessageNode:
		if n.Content == "" {
			return stepResult{}, nil
		}
		text := n.Content
		if n.Personalize {
			text = template.Personalize(text, r.trigger)
		}
		return stepResult{}, e.sendDM(ctx, r, text, models.MessageText)

	case flow.ButtonNode:
		text := renderButtons(n.Prompt, n.Options)
		return stepResult{}, e.sendDM(ctx, r, text, models.MessageButton)

	case flow.DelayNode:
		return stepResult{wait: n.Wait()}, nil

	case flow.ConditionNode:
		actual, present := resolveVariable(r, n.Variable)
		handle := "false"
		if n.Evaluate(actual, present) {
			handle = "true"
		}
		return stepResult{handle: handle}, nil

	case flow.CaptureNode:
		if n.Prompt != "" {
			if err := e.sendDM(ctx, r, template.Personalize(n.Prompt, r.trigger), models.MessageText); err != nil {
				return stepResult{}, err
			}
		}
		return stepResult{awaitInput: true}, nil

	case flow.EndNode:
		if n.Message != "" {
			if err := e.sendDM(ctx, r, template.Personalize(n.Message, r.trigger), models.MessageText); err != nil {
				return stepResult{}, err
			}
		}
		return stepResult{end: true}, nil

	default:
		return stepResult{}, fmt.Errorf("unsupported node type %q", node.Kind())
	}
}

// renderButtons enumerates the options as text since Instagram DMs have no
// native buttons for this channel.
func renderButtons(prompt string, options []flow.ButtonOption) string {
	var b strings.Builder
	b.WriteString(prompt)
	for i, opt := range options {
		if i == flow.MaxButtons {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if opt.Kind == flow.ButtonURL {
			fmt.Fprintf(&b, "%d. %s: %s", i+1, opt.Label, opt.Value)
		} else {
			fmt.Fprintf(&b, "%d. %s", i+1, opt.Label)
		}
	}
	return b.String()
}

// resolveVariable reads message and username from the trigger and anything
// else from the flow state.
func resolveVariable(r *run, name string) (string, bool) {
	switch name {
	case "message":
		return r.trigger.SourceText, true
	case "username":
		return r.trigger.ExternalUsername, r.trigger.ExternalUsername != ""
	}
	v, ok := r.state[name]
	if !ok || v == nil {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return fmt.Sprint(v), true
}

func (e *Engine) sendDM(ctx context.Context, r *run, text string, typ models.MessageType) error {
	providerID, err := e.Client.SendDirectMessage(ctx, r.account, r.trigger.ExternalUserID, text)
	if err != nil {
		e.Analytics.Record(ctx, r.trigger.CampaignID, analytics.Counters{DMsFailed: 1})
		return err
	}
	e.audit(ctx, r, text, typ, providerID)
	return nil
}

func (e *Engine) replyComment(ctx context.Context, r *run, text string) error {
	providerID, err := e.Client.ReplyToComment(ctx, r.account, r.trigger.SourceID, text)
	if err != nil {
		e.Analytics.Record(ctx, r.trigger.CampaignID, analytics.Counters{DMsFailed: 1})
		return err
	}
	e.audit(ctx, r, text, models.MessageCommentReply, providerID)
	return nil
}

// audit stores the Message row and bumps the sent counter. Failures here
// never fail the step.
func (e *Engine) audit(ctx context.Context, r *run, text string, typ models.MessageType, providerID string) {
	msg := &models.Message{
		TriggerID:         r.trigger.ID,
		CampaignID:        r.trigger.CampaignID,
		RecipientID:       r.trigger.ExternalUserID,
		Content:           text,
		Type:              typ,
		Status:            "sent",
		ProviderMessageID: providerID,
		SentAt:            e.now().UTC(),
	}
	if err := e.Store.InsertMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("trigger_id", r.trigger.ID).Msg("failed to store message audit row")
	}
	e.Analytics.Record(ctx, r.trigger.CampaignID, analytics.Counters{DMsSent: 1})
}
