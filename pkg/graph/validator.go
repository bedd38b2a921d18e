// Package graph validates workflow graphs and resolves deterministic
// execution orders.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loomworks/loom/pkg/models"
)

// ErrNoTrigger indicates the workflow has no recognized trigger node.
var ErrNoTrigger = errors.New("workflow has no trigger node")

// CyclicGraphError indicates a cycle among nodes reachable from the trigger.
type CyclicGraphError struct {
	NodeIDs []string // nodes left with positive in-degree
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("workflow graph contains a cycle involving nodes: %s", strings.Join(e.NodeIDs, ", "))
}

// DisconnectedGraphError indicates the workflow has more than one node but no
// connection links any node reachable from the trigger.
type DisconnectedGraphError struct {
	TriggerID string
}

func (e *DisconnectedGraphError) Error() string {
	return fmt.Sprintf("workflow graph is disconnected: no connections reach beyond trigger node %s", e.TriggerID)
}

// IsValidationError reports whether err is one of the graph validation failures.
func IsValidationError(err error) bool {
	var cyclic *CyclicGraphError

	var disconnected *DisconnectedGraphError

	return errors.Is(err, ErrNoTrigger) || errors.As(err, &cyclic) || errors.As(err, &disconnected)
}

// ResolveExecutionOrder validates the connection graph and returns the node IDs
// in execution order. The order is restricted to nodes reachable from the first
// trigger node via forward edges and is deterministic: ties between
// simultaneously-ready nodes are broken by node declaration order, so the same
// graph always yields the same ordering.
func ResolveExecutionOrder(nodes []*models.WorkflowNode, connections []*models.Connection) ([]string, error) {
	trigger := firstTrigger(nodes)
	if trigger == nil {
		return nil, ErrNoTrigger
	}

	return ResolveExecutionOrderFrom(trigger.ID, nodes, connections)
}

// ResolveExecutionOrderFrom resolves the order starting at an explicit node,
// used for webhook-initiated runs that begin at a specific trigger node.
func ResolveExecutionOrderFrom(startNodeID string, nodes []*models.WorkflowNode, connections []*models.Connection) ([]string, error) {
	if firstTrigger(nodes) == nil {
		return nil, ErrNoTrigger
	}

	declarationIndex := make(map[string]int, len(nodes))
	for i, node := range nodes {
		declarationIndex[node.ID] = i
	}

	adjacency := make(map[string][]string)
	for _, conn := range connections {
		adjacency[conn.SourceNodeID] = append(adjacency[conn.SourceNodeID], conn.TargetNodeID)
	}

	reachable := reachableFrom(startNodeID, adjacency)

	// A workflow holding more than one node but no edge out of the reachable
	// set is invalid: an orphan action node can never execute.
	if len(nodes) > 1 && len(reachable) == 1 {
		return nil, &DisconnectedGraphError{TriggerID: startNodeID}
	}

	// Kahn's algorithm on the reachable subgraph.
	inDegree := make(map[string]int, len(reachable))
	for id := range reachable {
		inDegree[id] = 0
	}

	for _, conn := range connections {
		if reachable[conn.SourceNodeID] && reachable[conn.TargetNodeID] {
			inDegree[conn.TargetNodeID]++
		}
	}

	order := make([]string, 0, len(reachable))
	done := make(map[string]bool, len(reachable))

	for len(order) < len(reachable) {
		next := ""
		nextIndex := -1

		for id, degree := range inDegree {
			if done[id] || degree != 0 {
				continue
			}

			if nextIndex == -1 || declarationIndex[id] < nextIndex {
				next = id
				nextIndex = declarationIndex[id]
			}
		}

		if next == "" {
			var remaining []string

			for id := range reachable {
				if !done[id] {
					remaining = append(remaining, id)
				}
			}

			sortByDeclaration(remaining, declarationIndex)

			return nil, &CyclicGraphError{NodeIDs: remaining}
		}

		done[next] = true
		order = append(order, next)

		for _, target := range adjacency[next] {
			if reachable[target] && !done[target] {
				inDegree[target]--
			}
		}
	}

	return order, nil
}

// ReachableFrom returns the set of node IDs reachable from start via forward
// edges, including start itself.
func ReachableFrom(startNodeID string, connections []*models.Connection) map[string]bool {
	adjacency := make(map[string][]string)
	for _, conn := range connections {
		adjacency[conn.SourceNodeID] = append(adjacency[conn.SourceNodeID], conn.TargetNodeID)
	}

	return reachableFrom(startNodeID, adjacency)
}

func reachableFrom(start string, adjacency map[string][]string) map[string]bool {
	reachable := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range adjacency[current] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	return reachable
}

func firstTrigger(nodes []*models.WorkflowNode) *models.WorkflowNode {
	for _, node := range nodes {
		if node.IsTriggerNode() {
			return node
		}
	}

	return nil
}

func sortByDeclaration(ids []string, index map[string]int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && index[ids[j]] < index[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
