// Package flow holds the typed conversation graph executed for a trigger.
//
// Nodes form a closed set: every variant implements Node, and the unexported
// marker method keeps other packages from adding variants. Executors switch
// over the concrete types.
package flow

import (
	"strings"
	"time"
)

type NodeType string

const (
	TypeMessage   NodeType = "message"
	TypeButton    NodeType = "button"
	TypeDelay     NodeType = "delay"
	TypeCondition NodeType = "condition"
	TypeCapture   NodeType = "capture"
	TypeEnd       NodeType = "end"
)

// MaxButtons is the number of options rendered for a button node.
const MaxButtons = 3

type Node interface {
	NodeID() string
	Kind() NodeType
	sealed()
}

type base struct {
	ID string
}

func (b base) NodeID() string { return b.ID }
func (base) sealed()          {}

type MessageNode struct {
	base
	Content     string
	Personalize bool
}

func (MessageNode) Kind() NodeType { return TypeMessage }

type ButtonKind string

const (
	ButtonReply ButtonKind = "reply"
	ButtonURL   ButtonKind = "url"
)

type ButtonOption struct {
	Label string
	Kind  ButtonKind
	Value string
}

type ButtonNode struct {
	base
	Prompt  string
	Options []ButtonOption
}

func (ButtonNode) Kind() NodeType { return TypeButton }

type DelayUnit string

const (
	UnitSeconds DelayUnit = "seconds"
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
)

type DelayNode struct {
	base
	Duration float64
	Unit     DelayUnit
}

func (DelayNode) Kind() NodeType { return TypeDelay }

// Wait converts the configured duration to a time.Duration. Unknown units
// count as seconds.
func (d DelayNode) Wait() time.Duration {
	if d.Duration <= 0 {
		return 0
	}
	mult := 1.0
	switch d.Unit {
	case UnitMinutes:
		mult = 60
	case UnitHours:
		mult = 3600
	}
	return time.Duration(d.Duration * mult * float64(time.Second))
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpExists      Operator = "exists"
)

type ConditionNode struct {
	base
	Variable string
	Operator Operator
	Value    string
}

func (ConditionNode) Kind() NodeType { return TypeCondition }

// Evaluate applies the operator to the resolved variable. String comparisons
// ignore case. present reports whether the variable was set at all.
func (c ConditionNode) Evaluate(actual string, present bool) bool {
	a := strings.ToLower(actual)
	v := strings.ToLower(c.Value)

	switch c.Operator {
	case OpEquals:
		return a == v
	case OpNotEquals:
		return a != v
	case OpContains:
		return strings.Contains(a, v)
	case OpNotContains:
		return !strings.Contains(a, v)
	case OpStartsWith:
		return strings.HasPrefix(a, v)
	case OpEndsWith:
		return strings.HasSuffix(a, v)
	case OpIsEmpty:
		return strings.TrimSpace(actual) == ""
	case OpIsNotEmpty:
		return strings.TrimSpace(actual) != ""
	case OpExists:
		return present
	default:
		return false
	}
}

type CaptureField string

const (
	CaptureEmail  CaptureField = "email"
	CapturePhone  CaptureField = "phone"
	CaptureName   CaptureField = "name"
	CaptureCustom CaptureField = "custom"
)

type CaptureNode struct {
	base
	Field    CaptureField
	Prompt   string
	Variable string // flow-state key for custom fields
}

func (CaptureNode) Kind() NodeType { return TypeCapture }

// StateKey is the flow-state key the captured reply is stored under.
func (c CaptureNode) StateKey() string {
	if c.Field == CaptureCustom && c.Variable != "" {
		return c.Variable
	}
	return string(c.Field)
}

type EndNode struct {
	base
	Message string
}

func (EndNode) Kind() NodeType { return TypeEnd }

type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
}
