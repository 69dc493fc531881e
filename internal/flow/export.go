package flow

import (
	"encoding/json"
	"fmt"

	"ig-automation/internal/models"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// Export is the JSON document produced by the flow editor.
type Export struct {
	ID    string       `json:"id,omitempty"`
	Name  string       `json:"name"`
	Nodes []ExportNode `json:"nodes"`
	Edges []ExportEdge `json:"edges"`
}

type ExportNode struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Position map[string]float64 `json:"position"`
	Data     json.RawMessage    `json:"data"`
}

type ExportEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
}

// ParseExport turns an editor export into relational flow rows. Every node
// must decode to a known variant and every edge must join declared nodes.
func ParseExport(raw []byte, ownerID string) (*models.Flow, error) {
	var doc Export
	if err := json.Unmarshal(raw, &doc); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(raw))
		if repairErr != nil {
			return nil, fmt.Errorf("invalid flow export: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
			return nil, fmt.Errorf("invalid flow export: %w", err)
		}
		log.Warn().Msg("repaired malformed flow export")
	}
	if len(doc.Nodes) == 0 {
		return nil, ErrNoStartNode
	}

	f := &models.Flow{ID: doc.ID, OwnerID: ownerID, Name: doc.Name}
	seen := make(map[string]bool, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node %d has no id", i)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = true

		data := []byte(n.Data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		if _, err := DecodeNode(n.ID, n.Type, data); err != nil {
			return nil, err
		}
		f.Nodes = append(f.Nodes, models.FlowNode{
			NodeID:    n.ID,
			Type:      n.Type,
			SortOrder: i,
			PositionX: n.Position["x"],
			PositionY: n.Position["y"],
			Data:      datatypes.JSON(data),
		})
	}

	for i, e := range doc.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return nil, fmt.Errorf("edge %s: %w", e.ID, ErrNodeNotFound)
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("e%d", i)
		}
		f.Edges = append(f.Edges, models.FlowEdge{
			EdgeID:       id,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
		})
	}
	return f, nil
}
