package flow

import (
	"testing"
	"time"

	"ig-automation/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func row(id, typ, data string) models.FlowNode {
	return models.FlowNode{NodeID: id, Type: typ, Data: datatypes.JSON(data)}
}

func TestDecodeNodeVariants(t *testing.T) {
	f := &models.Flow{
		ID: "f1",
		Nodes: []models.FlowNode{
			row("m", "message", `{"content":"Hi {{username}}","personalize":true}`),
			row("b", "button", `{"prompt":"Pick","buttons":[
				{"label":"A","type":"reply","value":"a"},
				{"label":"Site","type":"url","url":"https://x.io"},
				{"label":"C","type":"reply"},
				{"label":"D","type":"reply"}]}`),
			row("d", "delay", `{"duration":"2","unit":"minutes"}`),
			row("c", "condition", `{"variable":"message","operator":"contains","value":"price"}`),
			row("cap", "capture", `{"field":"email","prompt":"Your email?"}`),
			row("e", "end", `{"message":"Bye"}`),
		},
	}

	g, err := FromModel(f)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 6)

	want := []Node{
		MessageNode{base: base{ID: "m"}, Content: "Hi {{username}}", Personalize: true},
		ButtonNode{base: base{ID: "b"}, Prompt: "Pick", Options: []ButtonOption{
			{Label: "A", Kind: ButtonReply, Value: "a"},
			{Label: "Site", Kind: ButtonURL, Value: "https://x.io"},
			{Label: "C", Kind: ButtonReply},
		}},
		DelayNode{base: base{ID: "d"}, Duration: 2, Unit: UnitMinutes},
		ConditionNode{base: base{ID: "c"}, Variable: "message", Operator: OpContains, Value: "price"},
		CaptureNode{base: base{ID: "cap"}, Field: CaptureEmail, Prompt: "Your email?"},
		EndNode{base: base{ID: "e"}, Message: "Bye"},
	}
	if diff := cmp.Diff(want, g.Nodes, cmp.AllowUnexported(
		base{}, MessageNode{}, ButtonNode{}, DelayNode{}, ConditionNode{}, CaptureNode{}, EndNode{},
	)); diff != "" {
		t.Errorf("decoded nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeNodeRejectsUnknownType(t *testing.T) {
	_, err := DecodeNode("x", "carousel", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestDecodeNodeRepairsMalformedData(t *testing.T) {
	n, err := DecodeNode("m", "message", []byte(`{"content": "hello", "personalize": true,}`))
	require.NoError(t, err)
	msg, ok := n.(MessageNode)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)
	assert.True(t, msg.Personalize)
}

func TestDelayWait(t *testing.T) {
	tests := []struct {
		node DelayNode
		want time.Duration
	}{
		{DelayNode{Duration: 5, Unit: UnitSeconds}, 5 * time.Second},
		{DelayNode{Duration: 2, Unit: UnitMinutes}, 2 * time.Minute},
		{DelayNode{Duration: 1.5, Unit: UnitHours}, 90 * time.Minute},
		{DelayNode{Duration: 0, Unit: UnitHours}, 0},
		{DelayNode{Duration: 3, Unit: "fortnights"}, 3 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.node.Wait(), "%v %s", tt.node.Duration, tt.node.Unit)
	}
}

func TestConditionEvaluate(t *testing.T) {
	tests := []struct {
		op      Operator
		value   string
		actual  string
		present bool
		want    bool
	}{
		{OpEquals, "YES", "yes", true, true},
		{OpNotEquals, "yes", "no", true, true},
		{OpContains, "Price", "what is the PRICE?", true, true},
		{OpNotContains, "price", "hello", true, true},
		{OpStartsWith, "hi", "Hi there", true, true},
		{OpEndsWith, "?", "price?", true, true},
		{OpIsEmpty, "", "  ", true, true},
		{OpIsNotEmpty, "", "x", true, true},
		{OpExists, "", "", false, false},
		{OpExists, "", "", true, true},
		{"regex", ".*", "x", true, false},
	}
	for _, tt := range tests {
		c := ConditionNode{Operator: tt.op, Value: tt.value}
		assert.Equal(t, tt.want, c.Evaluate(tt.actual, tt.present), "%s %q %q", tt.op, tt.value, tt.actual)
	}
}

func TestStartNode(t *testing.T) {
	msg := func(id string) Node { return MessageNode{base: base{ID: id}} }
	end := func(id string) Node { return EndNode{base: base{ID: id}} }
	delay := func(id string) Node { return DelayNode{base: base{ID: id}} }

	tests := []struct {
		name  string
		nodes []Node
		edges []Edge
		want  string
	}{
		{"root message preferred", []Node{delay("d"), msg("a"), msg("b")},
			[]Edge{{Source: "a", Target: "b"}}, "a"},
		{"non-end root over end", []Node{end("e"), delay("d")}, nil, "d"},
		{"only end", []Node{end("e")}, nil, "e"},
		{"fully cyclic falls back to first declared", []Node{delay("d"), msg("m")},
			[]Edge{{Source: "d", Target: "m"}, {Source: "m", Target: "d"}}, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewGraph("g", tt.nodes, tt.edges).StartNode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.NodeID())
		})
	}

	_, err := NewGraph("g", nil, nil).StartNode()
	require.ErrorIs(t, err, ErrNoStartNode)
}

func TestNext(t *testing.T) {
	g := NewGraph("g", nil, []Edge{
		{Source: "c", Target: "yes", SourceHandle: "true"},
		{Source: "c", Target: "no", SourceHandle: "false"},
		{Source: "a", Target: "b"},
	})

	next, ok := g.Next("c", "false")
	require.True(t, ok)
	assert.Equal(t, "no", next)

	next, ok = g.Next("c", "maybe")
	require.True(t, ok)
	assert.Equal(t, "yes", next)

	next, ok = g.Next("a", "")
	require.True(t, ok)
	assert.Equal(t, "b", next)

	_, ok = g.Next("b", "")
	assert.False(t, ok)
}
