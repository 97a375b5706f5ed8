// Package reporting renders suite results for people: a console table and a
// persisted plain-text summary.
package reporting

import (
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// NodeKind distinguishes leaf tests from groups in a result tree
type NodeKind string

const (
	NodeKindTest  NodeKind = "Test"
	NodeKindGroup NodeKind = "Group"
	// NodeKindUnit is used for skipped units, whose kind is not known
	// because they never ran.
	NodeKindUnit NodeKind = "Unit"
)

// Node is one unit of a result tree
type Node struct {
	Name     string // leaf name
	Path     string // scoped name
	Kind     NodeKind
	Status   types.TestStatus
	Depth    int
	Elapsed  time.Duration
	Attempts int
	Err      error
	Stats    types.ResultStats
	Parent   *Node
	Children []*Node
}

// Tree is the result tree of one suite run
type Tree struct {
	RunID    string
	Duration time.Duration
	Status   types.TestStatus
	Stats    types.ResultStats
	// Err is set when the suite failed before producing unit results
	Err    error
	Roots  []*Node
	Failed []*Node
}

// BuildTree converts a suite result into a walkable tree
func BuildTree(result types.SuiteResult) *Tree {
	tree := &Tree{
		RunID:    result.RunID,
		Duration: result.Duration,
		Status:   types.TestStatusPass,
		Stats:    result.Stats(),
	}
	if !result.OK() {
		tree.Status = types.TestStatusFail
		if _, ok := result.Err.(*types.TestRunError); !ok {
			tree.Err = result.Err
		}
	}

	for _, r := range result.Results() {
		tree.Roots = append(tree.Roots, tree.resultNode(r, nil, 0))
	}
	return tree
}

func (t *Tree) resultNode(r types.Result, parent *Node, depth int) *Node {
	n := &Node{
		Name:   types.LeafName(r.Name),
		Path:   r.Name,
		Kind:   NodeKindUnit,
		Status: r.Status,
		Depth:  depth,
		Parent: parent,
		Stats:  types.StatsOf([]types.Result{r}),
	}

	switch {
	case r.Status == types.TestStatusPass:
		t.fillSuccess(n, r.Success)
	case r.Status == types.TestStatusSkip:
	default:
		n.Err = r.Err
		switch err := r.Err.(type) {
		case *types.GroupError:
			n.Kind = NodeKindGroup
			for _, child := range err.Results {
				n.Children = append(n.Children, t.resultNode(child, n, depth+1))
			}
		case *types.TestFailure:
			n.Kind = NodeKindTest
			n.Attempts = err.Attempts
			t.Failed = append(t.Failed, n)
		default:
			t.Failed = append(t.Failed, n)
		}
	}
	return n
}

func (t *Tree) fillSuccess(n *Node, success types.TestUnitSuccess) {
	switch s := success.(type) {
	case *types.TestSuccess:
		n.Kind = NodeKindTest
		n.Elapsed = s.Elapsed
		n.Attempts = s.Attempts
	case *types.GroupSuccess:
		n.Kind = NodeKindGroup
		for _, child := range s.Results {
			c := &Node{
				Name:   types.LeafName(child.Name),
				Path:   child.Name,
				Status: types.TestStatusPass,
				Depth:  n.Depth + 1,
				Parent: n,
				Stats:  types.StatsOf([]types.Result{types.Passed(child.Name, child.Value)}),
			}
			t.fillSuccess(c, child.Value)
			n.Children = append(n.Children, c)
		}
	}
}

// Walk visits every node depth-first in result order. Returning false from fn
// skips the children of the node.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) {
				walk(n.Children)
			}
		}
	}
	walk(t.Roots)
}

// IsLast reports whether n is the last of its siblings
func (t *Tree) IsLast(n *Node) bool {
	siblings := t.Roots
	if n.Parent != nil {
		siblings = n.Parent.Children
	}
	return len(siblings) > 0 && siblings[len(siblings)-1] == n
}

// Prefix returns the box-drawing prefix that places n in the hierarchy
func (t *Tree) Prefix(n *Node) string {
	if n.Parent == nil {
		return ""
	}

	var parentIsLast []bool
	for p := n.Parent; p.Parent != nil; p = p.Parent {
		parentIsLast = append([]bool{t.IsLast(p)}, parentIsLast...)
	}
	return BuildTreePrefix(n.Depth, t.IsLast(n), parentIsLast)
}
