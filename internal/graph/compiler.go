package graph

import (
	"fmt"

	"github.com/dukex/aob/internal/expr"
	"github.com/dukex/aob/pkg/models"
	"github.com/go-playground/validator/v10"
)

var structValidate = validator.New(validator.WithRequiredStructEnabled())

// Compile parses and validates a WorkflowSpec, producing a runtime Graph or
// the first CompileError encountered. Compilation is pure and
// side-effect-free: the same spec always yields a byte-identical graph
// (spec §4.1).
func Compile(spec models.WorkflowSpec) (*Graph, error) {
	if len(spec.Nodes) == 0 {
		return nil, &CompileError{Kind: ErrEmptyGraph}
	}

	if err := structValidate.Struct(spec); err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	nodes := make(map[string]models.Node, len(spec.Nodes))

	for _, n := range spec.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return nil, &CompileError{Kind: ErrDuplicateNodeID, NodeID: n.ID}
		}

		if n.Kind == models.NodeKindHuman && n.ApprovalKey == "" {
			return nil, &CompileError{Kind: ErrMissingApprovalKey, NodeID: n.ID}
		}

		retry := n.Retry
		if retry == (models.RetryPolicy{}) {
			retry = models.DefaultRetryPolicy()
			n.Retry = retry
		}

		if !retry.Valid() {
			field := "max_attempts"
			if retry.BaseDelay > retry.MaxDelay {
				field = "base_delay"
			}

			return nil, &CompileError{Kind: ErrInvalidRetryPolicy, NodeID: n.ID, Field: field}
		}

		if err := validateNodeConfig(n); err != nil {
			return nil, err
		}

		nodes[n.ID] = n
	}

	forward := make(map[string][]models.Edge, len(nodes))
	reverse := make(map[string][]models.Edge, len(nodes))
	indegreeNonTerminal := make(map[string]int)

	for _, e := range spec.Edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, &CompileError{Kind: ErrUnknownNodeReference, NodeID: e.From}
		}

		if _, ok := nodes[e.To]; !ok {
			return nil, &CompileError{Kind: ErrUnknownNodeReference, NodeID: e.To}
		}

		forward[e.From] = append(forward[e.From], e)
		reverse[e.To] = append(reverse[e.To], e)
	}

	for id := range nodes {
		indegreeNonTerminal[id] = len(reverse[id])
	}

	if path := detectCycle(nodes, forward); path != nil {
		return nil, &CompileError{Kind: ErrCycleDetected, Path: path}
	}

	starts := make([]string, 0)

	for id, n := range nodes {
		if n.Kind == models.NodeKindTerminal {
			continue
		}

		if indegreeNonTerminal[id] == 0 {
			starts = append(starts, id)
		}
	}

	if len(starts) == 0 {
		return nil, &CompileError{Kind: ErrNoStartNode}
	}

	if len(starts) > 1 {
		return nil, &CompileError{Kind: ErrMultipleStartNodes, Message: fmt.Sprint(starts)}
	}

	exprOf := make(map[string]*expr.Expr, len(nodes))

	for id, n := range nodes {
		if n.Kind != models.NodeKindTask && n.Kind != models.NodeKindAgent {
			continue
		}

		e, err := expr.Parse(n.Expr)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}

		exprOf[id] = e
	}

	g := &Graph{
		ID:      spec.ID,
		StartID: starts[0],
		Nodes:   nodes,
		ExprOf:  exprOf,
		Edges:   spec.Edges,
		forward: forward,
		reverse: reverse,
	}
	g.predecessors = computeTransitivePredecessors(nodes, reverse)

	return g, nil
}

// detectCycle runs a DFS over the forward adjacency; on finding a back-edge
// it returns the full cycle path, node ids in traversal order (§4.1).
func detectCycle(nodes map[string]models.Node, forward map[string][]models.Edge) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(nodes))

	var path []string

	var cyclePath []string

	var visit func(id string) bool

	visit = func(id string) bool {
		color[id] = gray

		path = append(path, id)

		for _, e := range forward[id] {
			switch color[e.To] {
			case gray:
				cyclePath = append(append([]string(nil), path...), e.To)

				return true
			case white:
				if visit(e.To) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black

		return false
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}

	ids = SortNodeIDsDeterministic(ids)

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cyclePath
			}
		}
	}

	return nil
}

// computeTransitivePredecessors precomputes, for every node, the full set
// of nodes that must complete before it may run — used by the AND-join
// semantics of §4.7.2 step 4. Compensation (on_failure) edges are not
// followed: their source fails rather than completes, and their target is
// admitted through a node.failed event's reroute_to instead.
func computeTransitivePredecessors(nodes map[string]models.Node, reverse map[string][]models.Edge) map[string]map[string]bool {
	memo := make(map[string]map[string]bool, len(nodes))

	var resolve func(id string, visiting map[string]bool) map[string]bool

	resolve = func(id string, visiting map[string]bool) map[string]bool {
		if set, ok := memo[id]; ok {
			return set
		}

		set := make(map[string]bool)
		visiting[id] = true

		for _, e := range reverse[id] {
			if e.OnFailure() {
				continue
			}

			set[e.From] = true

			if !visiting[e.From] {
				for p := range resolve(e.From, visiting) {
					set[p] = true
				}
			}
		}

		delete(visiting, id)
		memo[id] = set

		return set
	}

	for id := range nodes {
		resolve(id, make(map[string]bool))
	}

	return memo
}
