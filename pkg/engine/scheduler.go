package engine

import (
	"fmt"

	"github.com/loomhq/loom/pkg/models"
)

// Order produces an execution order for the graph's nodes that respects every
// connection: for each edge a→b, a precedes b. Independent nodes keep their
// original graph order so the same snapshot always yields the same sequence.
// Nodes without any connection are included; each node appears exactly once.
//
// A cyclic connection set (including a single-node self-cycle) fails with
// *CycleError.
func Order(nodes []*models.Node, connections []*models.Connection) ([]*models.Node, error) {
	// All nodes independent, no ordering constraint imposed.
	if len(connections) == 0 {
		return nodes, nil
	}

	byID := make(map[string]*models.Node, len(nodes))
	for _, node := range nodes {
		if _, dup := byID[node.ID]; dup {
			continue
		}

		byID[node.ID] = node
	}

	// The node list itself seeds the sort, so disconnected nodes are included
	// without synthetic self-edges and a genuine a→a edge stays detectable as
	// a cycle.
	indegree := make(map[string]int, len(nodes))
	adjacent := make(map[string][]string, len(nodes))

	for _, node := range nodes {
		indegree[node.ID] = 0
	}

	for _, conn := range connections {
		if _, ok := byID[conn.FromNodeID]; !ok {
			return nil, fmt.Errorf("connection %s references unknown node %s", conn.ID, conn.FromNodeID)
		}

		if _, ok := byID[conn.ToNodeID]; !ok {
			return nil, fmt.Errorf("connection %s references unknown node %s", conn.ID, conn.ToNodeID)
		}

		adjacent[conn.FromNodeID] = append(adjacent[conn.FromNodeID], conn.ToNodeID)
		indegree[conn.ToNodeID]++
	}

	// Kahn's algorithm. The initial queue follows the authored node order;
	// later insertions follow each drained node's connection order. Both are
	// fixed by the graph, so ties break the same way on every run.
	ordered := make([]*models.Node, 0, len(byID))
	queued := make(map[string]bool, len(byID))

	queue := make([]string, 0, len(byID))
	for _, node := range nodes {
		if indegree[node.ID] == 0 && !queued[node.ID] {
			queue = append(queue, node.ID)
			queued[node.ID] = true
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])

		for _, next := range adjacent[id] {
			indegree[next]--
			if indegree[next] == 0 && !queued[next] {
				queue = append(queue, next)
				queued[next] = true
			}
		}
	}

	if len(ordered) != len(byID) {
		return nil, &CycleError{}
	}

	return ordered, nil
}
