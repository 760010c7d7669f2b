// Package graph implements the workflow compiler (C1): it validates a
// declarative WorkflowSpec against the DAG invariants of spec §3 and
// produces an immutable runtime Graph with precomputed adjacency and
// join-predecessor indexes used by the execution engine (§4.7.2 step 4).
package graph

import (
	"sort"

	"github.com/dukex/aob/internal/expr"
	"github.com/dukex/aob/pkg/models"
)

// Graph is the validated, compiled runtime form of a WorkflowSpec.
type Graph struct {
	ID       string
	StartID  string
	Nodes    map[string]models.Node
	ExprOf   map[string]*expr.Expr
	Edges    []models.Edge
	forward  map[string][]models.Edge // from -> outgoing edges
	reverse  map[string][]models.Edge // to -> incoming edges
	predecessors map[string]map[string]bool // node -> transitive predecessor set
}

// Successors returns the outgoing edges of a node id, in spec declaration order.
func (g *Graph) Successors(nodeID string) []models.Edge {
	return g.forward[nodeID]
}

// Incoming returns the incoming edges of a node id.
func (g *Graph) Incoming(nodeID string) []models.Edge {
	return g.reverse[nodeID]
}

// InDegree returns the number of distinct predecessors of a node.
func (g *Graph) InDegree(nodeID string) int {
	return len(g.reverse[nodeID])
}

// IsTerminal reports whether a node has no outgoing edges.
func (g *Graph) IsTerminal(nodeID string) bool {
	return len(g.forward[nodeID]) == 0
}

// TerminalNodes returns all node ids with no outgoing edges, ascending.
func (g *Graph) TerminalNodes() []string {
	ids := make([]string, 0)

	for id := range g.Nodes {
		if g.IsTerminal(id) {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	return ids
}

// PredecessorsCompleted reports whether every predecessor of nodeID is in
// the completed set — the AND-join test of §4.7.2 step 4.
func (g *Graph) PredecessorsCompleted(nodeID string, completed map[string]bool) bool {
	for pred := range g.predecessors[nodeID] {
		if !completed[pred] {
			return false
		}
	}

	return true
}

// SortNodeIDsDeterministic orders ids by the tiebreak rule of §4.7.2:
// ascending node id (topological ordering is encoded in the adjacency
// indexes already; ties between independently-ready nodes break by id).
func SortNodeIDsDeterministic(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)

	return out
}
