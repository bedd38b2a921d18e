package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/graph"
	"github.com/loomworks/loom/pkg/models"
)

func node(id, nodeType string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: nodeType, Name: id}
}

func conn(source, target string) *models.Connection {
	return &models.Connection{
		SourceNodeID: source,
		SourceHandle: models.DefaultHandle,
		TargetNodeID: target,
		TargetHandle: models.DefaultHandle,
	}
}

func TestResolveExecutionOrder_Linear(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("trigger", models.NodeTypeTriggerManual),
		node("a", models.NodeTypeHTTPRequest),
		node("b", models.NodeTypeTransform),
	}
	connections := []*models.Connection{
		conn("trigger", "a"),
		conn("a", "b"),
	}

	order, err := graph.ResolveExecutionOrder(nodes, connections)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger", "a", "b"}, order)
}

func TestResolveExecutionOrder_DiamondIsDeterministic(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("trigger", models.NodeTypeTriggerManual),
		node("left", models.NodeTypeHTTPRequest),
		node("right", models.NodeTypeTransform),
		node("join", models.NodeTypeLog),
	}
	connections := []*models.Connection{
		conn("trigger", "left"),
		conn("trigger", "right"),
		conn("left", "join"),
		conn("right", "join"),
	}

	first, err := graph.ResolveExecutionOrder(nodes, connections)
	require.NoError(t, err)

	// left and right are ready simultaneously; declaration order breaks the tie.
	assert.Equal(t, []string{"trigger", "left", "right", "join"}, first)

	for range 10 {
		again, err := graph.ResolveExecutionOrder(nodes, connections)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveExecutionOrder_RespectsAllEdges(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("t", models.NodeTypeTriggerWebhook),
		node("d", models.NodeTypeLog),
		node("c", models.NodeTypeLog),
		node("b", models.NodeTypeLog),
		node("a", models.NodeTypeLog),
	}
	connections := []*models.Connection{
		conn("t", "a"),
		conn("t", "b"),
		conn("a", "c"),
		conn("b", "c"),
		conn("c", "d"),
	}

	order, err := graph.ResolveExecutionOrder(nodes, connections)
	require.NoError(t, err)
	require.Len(t, order, len(nodes))

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	for _, edge := range connections {
		assert.Less(t, position[edge.SourceNodeID], position[edge.TargetNodeID],
			"edge %s->%s not respected", edge.SourceNodeID, edge.TargetNodeID)
	}
}

func TestResolveExecutionOrder_Cycle(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("trigger", models.NodeTypeTriggerManual),
		node("a", models.NodeTypeHTTPRequest),
		node("b", models.NodeTypeTransform),
	}
	connections := []*models.Connection{
		conn("trigger", "a"),
		conn("a", "b"),
		conn("b", "a"),
	}

	_, err := graph.ResolveExecutionOrder(nodes, connections)

	var cyclic *graph.CyclicGraphError

	require.ErrorAs(t, err, &cyclic)
	assert.ElementsMatch(t, []string{"a", "b"}, cyclic.NodeIDs)
	assert.True(t, graph.IsValidationError(err))
}

func TestResolveExecutionOrder_CycleThroughTrigger(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("trigger", models.NodeTypeTriggerManual),
		node("a", models.NodeTypeHTTPRequest),
	}
	connections := []*models.Connection{
		conn("trigger", "a"),
		conn("a", "trigger"),
	}

	_, err := graph.ResolveExecutionOrder(nodes, connections)

	var cyclic *graph.CyclicGraphError

	require.ErrorAs(t, err, &cyclic)
}

func TestResolveExecutionOrder_CycleOutsideReachableSetIsIgnored(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("trigger", models.NodeTypeTriggerManual),
		node("a", models.NodeTypeHTTPRequest),
		node("x", models.NodeTypeLog),
		node("y", models.NodeTypeLog),
	}
	connections := []*models.Connection{
		conn("trigger", "a"),
		conn("x", "y"),
		conn("y", "x"),
	}

	order, err := graph.ResolveExecutionOrder(nodes, connections)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger", "a"}, order)
}

func TestResolveExecutionOrder_NoTrigger(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("a", models.NodeTypeHTTPRequest),
		node("b", models.NodeTypeTransform),
	}

	_, err := graph.ResolveExecutionOrder(nodes, []*models.Connection{conn("a", "b")})
	require.ErrorIs(t, err, graph.ErrNoTrigger)
	assert.True(t, graph.IsValidationError(err))
}

func TestResolveExecutionOrder_Disconnected(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("trigger", models.NodeTypeTriggerManual),
		node("orphan", models.NodeTypeHTTPRequest),
	}

	_, err := graph.ResolveExecutionOrder(nodes, nil)

	var disconnected *graph.DisconnectedGraphError

	require.ErrorAs(t, err, &disconnected)
	assert.Equal(t, "trigger", disconnected.TriggerID)
	assert.True(t, graph.IsValidationError(err))
}

func TestResolveExecutionOrder_SingleTriggerNode(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{node("trigger", models.NodeTypeTriggerManual)}

	order, err := graph.ResolveExecutionOrder(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger"}, order)
}

func TestResolveExecutionOrderFrom_WebhookStartNode(t *testing.T) {
	t.Parallel()

	nodes := []*models.WorkflowNode{
		node("manual", models.NodeTypeTriggerManual),
		node("hook", models.NodeTypeTriggerWebhook),
		node("a", models.NodeTypeHTTPRequest),
		node("b", models.NodeTypeLog),
	}
	connections := []*models.Connection{
		conn("manual", "a"),
		conn("hook", "b"),
	}

	order, err := graph.ResolveExecutionOrderFrom("hook", nodes, connections)
	require.NoError(t, err)
	assert.Equal(t, []string{"hook", "b"}, order)
}

func TestReachableFrom(t *testing.T) {
	t.Parallel()

	connections := []*models.Connection{
		conn("a", "b"),
		conn("b", "c"),
		conn("x", "y"),
	}

	reachable := graph.ReachableFrom("a", connections)
	assert.True(t, reachable["a"])
	assert.True(t, reachable["b"])
	assert.True(t, reachable["c"])
	assert.False(t, reachable["x"])
	assert.False(t, reachable["y"])
}
