package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ig-automation/internal/models"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoStartNode     = errors.New("flow has no start node")
	ErrNodeNotFound    = errors.New("flow node not found")
	ErrMaxIterations   = errors.New("flow exceeded maximum iterations")
	ErrUnknownNodeType = errors.New("unknown flow node type")
)

type Graph struct {
	ID    string
	Name  string
	Nodes []Node
	Edges []Edge

	index map[string]Node
}

func NewGraph(id string, nodes []Node, edges []Edge) *Graph {
	g := &Graph{ID: id, Nodes: nodes, Edges: edges, index: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		if _, dup := g.index[n.NodeID()]; !dup {
			g.index[n.NodeID()] = n
		}
	}
	return g
}

// FromModel decodes the stored rows of a flow into a typed graph.
func FromModel(f *models.Flow) (*Graph, error) {
	nodes := make([]Node, 0, len(f.Nodes))
	for _, row := range f.Nodes {
		n, err := DecodeNode(row.NodeID, row.Type, row.Data)
		if err != nil {
			return nil, fmt.Errorf("flow %s: %w", f.ID, err)
		}
		nodes = append(nodes, n)
	}
	edges := make([]Edge, 0, len(f.Edges))
	for _, e := range f.Edges {
		edges = append(edges, Edge{ID: e.EdgeID, Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle})
	}
	g := NewGraph(f.ID, nodes, edges)
	g.Name = f.Name
	return g, nil
}

func (g *Graph) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}

func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

// StartNode picks a node without incoming edges, preferring message nodes,
// then anything but an end node, then declaration order. A graph where every
// node has an incoming edge falls back to all nodes.
func (g *Graph) StartNode() (Node, error) {
	if g.Empty() {
		return nil, ErrNoStartNode
	}
	incoming := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		incoming[e.Target] = true
	}
	var candidates []Node
	for _, n := range g.Nodes {
		if !incoming[n.NodeID()] {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		// Every node has an incoming edge.
		return g.Nodes[0], nil
	}

	for _, n := range candidates {
		if n.Kind() == TypeMessage {
			return n, nil
		}
	}
	for _, n := range candidates {
		if n.Kind() != TypeEnd {
			return n, nil
		}
	}
	return candidates[0], nil
}

// Next follows the outgoing edge whose handle matches, else the first
// outgoing edge. ok is false when the node has no outgoing edge.
func (g *Graph) Next(from, handle string) (string, bool) {
	first := ""
	found := false
	for _, e := range g.Edges {
		if e.Source != from {
			continue
		}
		if handle != "" && e.SourceHandle == handle {
			return e.Target, true
		}
		if !found {
			first, found = e.Target, true
		}
	}
	return first, found
}

// Wire shapes written by the flow editor.

type buttonData struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	Value string `json:"value"`
	URL   string `json:"url"`
}

type nodeData struct {
	Content     string       `json:"content"`
	Personalize bool         `json:"personalize"`
	Prompt      string       `json:"prompt"`
	Buttons     []buttonData `json:"buttons"`
	Duration    interface{}  `json:"duration"` // number or numeric string
	Unit        string       `json:"unit"`
	Variable    string       `json:"variable"`
	Operator    string       `json:"operator"`
	Value       interface{}  `json:"value"`
	Field       string       `json:"field"`
	Message     string       `json:"message"`
}

func parseData(raw []byte) (nodeData, error) {
	var d nodeData
	if len(raw) == 0 || string(raw) == "null" {
		return d, nil
	}
	err := json.Unmarshal(raw, &d)
	if err == nil {
		return d, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(raw))
	if repairErr != nil {
		return d, err
	}
	if err2 := json.Unmarshal([]byte(repaired), &d); err2 != nil {
		return d, err
	}
	log.Warn().Msg("repaired malformed flow node data")
	return d, nil
}

// DecodeNode converts a stored node into its typed variant.
func DecodeNode(id, typ string, raw []byte) (Node, error) {
	d, err := parseData(raw)
	if err != nil {
		return nil, fmt.Errorf("node %s: invalid data: %w", id, err)
	}
	b := base{ID: id}

	switch NodeType(typ) {
	case TypeMessage:
		return MessageNode{base: b, Content: d.Content, Personalize: d.Personalize}, nil
	case TypeButton:
		n := ButtonNode{base: b, Prompt: d.Prompt}
		if n.Prompt == "" {
			n.Prompt = d.Content
		}
		for _, btn := range d.Buttons {
			if len(n.Options) == MaxButtons {
				break
			}
			opt := ButtonOption{Label: btn.Label, Kind: ButtonReply, Value: btn.Value}
			if ButtonKind(btn.Type) == ButtonURL {
				opt.Kind = ButtonURL
				if btn.URL != "" {
					opt.Value = btn.URL
				}
			}
			n.Options = append(n.Options, opt)
		}
		return n, nil
	case TypeDelay:
		dur, _ := ToFloat(d.Duration)
		unit := DelayUnit(d.Unit)
		if unit == "" {
			unit = UnitSeconds
		}
		return DelayNode{base: b, Duration: dur, Unit: unit}, nil
	case TypeCondition:
		return ConditionNode{base: b, Variable: d.Variable, Operator: Operator(d.Operator), Value: toString(d.Value)}, nil
	case TypeCapture:
		field := CaptureField(d.Field)
		if field == "" {
			field = CaptureCustom
		}
		return CaptureNode{base: b, Field: field, Prompt: d.Prompt, Variable: d.Variable}, nil
	case TypeEnd:
		msg := d.Message
		if msg == "" {
			msg = d.Content
		}
		return EndNode{base: b, Message: msg}, nil
	default:
		return nil, fmt.Errorf("node %s: %w %q", id, ErrUnknownNodeType, typ)
	}
}

// ToFloat accepts JSON numbers and numeric strings.
func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		if res, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return res, true
		}
	}
	return 0, false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
