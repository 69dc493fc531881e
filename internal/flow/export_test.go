package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorExport = `{
  "name": "Lead magnet",
  "nodes": [
    {"id": "n1", "type": "message", "position": {"x": 10, "y": 20}, "data": {"content": "Hi {{username}}"}},
    {"id": "n2", "type": "capture", "position": {"x": 10, "y": 120}, "data": {"field": "email", "prompt": "Your email?"}},
    {"id": "n3", "type": "end", "position": {"x": 10, "y": 220}}
  ],
  "edges": [
    {"id": "a", "source": "n1", "target": "n2"},
    {"source": "n2", "target": "n3"}
  ]
}`

func TestParseExport(t *testing.T) {
	f, err := ParseExport([]byte(editorExport), "owner-1")
	require.NoError(t, err)

	assert.Equal(t, "Lead magnet", f.Name)
	assert.Equal(t, "owner-1", f.OwnerID)
	require.Len(t, f.Nodes, 3)
	assert.Equal(t, "capture", f.Nodes[1].Type)
	assert.Equal(t, 1, f.Nodes[1].SortOrder)
	assert.Equal(t, 120.0, f.Nodes[1].PositionY)
	assert.JSONEq(t, `{}`, string(f.Nodes[2].Data))

	require.Len(t, f.Edges, 2)
	assert.Equal(t, "a", f.Edges[0].EdgeID)
	assert.Equal(t, "e1", f.Edges[1].EdgeID)

	g, err := FromModel(f)
	require.NoError(t, err)
	start, err := g.StartNode()
	require.NoError(t, err)
	assert.Equal(t, "n1", start.NodeID())
}

func TestParseExportRejects(t *testing.T) {
	_, err := ParseExport([]byte(`{"nodes":[{"id":"x","type":"carousel"}]}`), "o")
	assert.True(t, errors.Is(err, ErrUnknownNodeType), err)

	_, err = ParseExport([]byte(`{"nodes":[{"id":"x","type":"end"}],"edges":[{"id":"e","source":"x","target":"y"}]}`), "o")
	assert.True(t, errors.Is(err, ErrNodeNotFound), err)

	_, err = ParseExport([]byte(`{"nodes":[]}`), "o")
	assert.True(t, errors.Is(err, ErrNoStartNode), err)

	_, err = ParseExport([]byte(`{"nodes":[{"id":"x","type":"end"},{"id":"x","type":"end"}]}`), "o")
	assert.Error(t, err)
}

func TestParseExportRepairsTrailingComma(t *testing.T) {
	f, err := ParseExport([]byte(`{"name":"x","nodes":[{"id":"a","type":"end","data":{"message":"bye"}},],}`), "o")
	require.NoError(t, err)
	require.Len(t, f.Nodes, 1)
}
