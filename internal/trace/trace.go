// Package trace rebuilds genealogy trees from the flat rows produced by a
// forward or backward license-plate traversal.
//
// A build is a pure function of its input rows. Malformed input never fails
// the build: dangling or cyclic parent references become extra roots, and
// duplicate node ids resolve last-row-wins. Each recovery is recorded as an
// Anomaly on the resulting Tree.
package trace

import (
	"log/slog"
	"math"
)

// QAStatus is the quality status carried by a node.
type QAStatus string

const (
	QAPassed     QAStatus = "Passed"
	QAFailed     QAStatus = "Failed"
	QAQuarantine QAStatus = "Quarantine"
	QAPending    QAStatus = "Pending"
	// QAMixed only appears as a rollup result.
	QAMixed QAStatus = "Mixed"
)

// Known reports whether s is one of the inspectable statuses.
func (s QAStatus) Known() bool {
	switch s {
	case QAPassed, QAFailed, QAQuarantine, QAPending:
		return true
	}
	return false
}

// Row is one node of a traversal result.
type Row struct {
	NodeID             string   `json:"node_id"`
	NodeType           string   `json:"node_type"`
	NodeNumber         string   `json:"node_number"`
	ProductDescription string   `json:"product_description"`
	Quantity           float64  `json:"quantity"`
	UOM                string   `json:"uom"`
	QAStatus           QAStatus `json:"qa_status"`
	StageSuffix        string   `json:"stage_suffix,omitempty"`
	Location           string   `json:"location,omitempty"`
	ParentNode         string   `json:"parent_node,omitempty"`
	Depth              int      `json:"depth"`
	Path               []string `json:"path,omitempty"`
}

// Node is a Row placed in a tree. Children are owned by the node; the parent
// link is a back-reference only and is never serialized.
type Node struct {
	Row
	Children []*Node `json:"children"`
	Orphan   bool    `json:"orphan,omitempty"`

	parent *Node
}

// Parent returns the node this one hangs under, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Ancestors returns node numbers from the root down to n's parent.
func (n *Node) Ancestors() []string {
	var out []string
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p.NodeNumber)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (n *Node) isDescendantOf(other *Node) bool {
	for p := n; p != nil; p = p.parent {
		if p == other {
			return true
		}
	}
	return false
}

// AnomalyKind names a recovery applied during a build.
type AnomalyKind string

const (
	AnomalyDanglingParent AnomalyKind = "dangling_parent"
	AnomalyDuplicateID    AnomalyKind = "duplicate_id"
	AnomalyCycle          AnomalyKind = "cycle"
)

// Anomaly describes a row that did not fit the expected tree shape.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	NodeID   string      `json:"node_id"`
	ParentID string      `json:"parent_id,omitempty"`
}

// Summary aggregates every row of a build.
type Summary struct {
	TotalNodes        int      `json:"total_nodes"`
	TotalQuantity     float64  `json:"total_quantity"`
	QAStatus          QAStatus `json:"qa_status"`
	TraceCompleteness int      `json:"trace_completeness"`
}

// Tree is the result of a successful build.
type Tree struct {
	// Roots holds depth-0 nodes in input order followed by orphans in input
	// order. Roots[0] is the primary display root.
	Roots     []*Node   `json:"roots"`
	Depth     int       `json:"depth"`
	Path      []string  `json:"path"`
	Summary   Summary   `json:"summary"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}

// Root returns the primary display root.
func (t *Tree) Root() *Node {
	if t == nil || len(t.Roots) == 0 {
		return nil
	}
	return t.Roots[0]
}

// Walk visits every node reachable from the roots, depth-first pre-order.
func (t *Tree) Walk(fn func(n *Node, level int)) {
	var visit func(n *Node, level int)
	visit = func(n *Node, level int) {
		fn(n, level)
		for _, c := range n.Children {
			visit(c, level+1)
		}
	}
	for _, r := range t.Roots {
		visit(r, 0)
	}
}

// Builder builds trees and reports anomalies to an optional logger.
type Builder struct {
	Logger *slog.Logger
}

// Build converts rows into a tree. It returns false when rows is empty.
func Build(rows []Row) (*Tree, bool) {
	return Builder{}.Build(rows)
}

// Build converts rows into a tree. It returns false when rows is empty.
func (b Builder) Build(rows []Row) (*Tree, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	tree := &Tree{}
	nodes := make([]*Node, len(rows))
	index := make(map[string]*Node, len(rows))
	for i, row := range rows {
		n := &Node{Row: row, Children: []*Node{}}
		if len(row.Path) > 0 {
			n.Path = append([]string(nil), row.Path...)
		}
		nodes[i] = n
		if _, dup := index[row.NodeID]; dup {
			tree.Anomalies = append(tree.Anomalies, Anomaly{Kind: AnomalyDuplicateID, NodeID: row.NodeID})
		}
		index[row.NodeID] = n
		if row.Depth == 0 {
			tree.Roots = append(tree.Roots, n)
		}
	}

	var orphans []*Node
	for _, n := range nodes {
		if n.Depth == 0 {
			continue
		}
		parent, ok := index[n.ParentNode]
		switch {
		case !ok || n.ParentNode == "":
			n.Orphan = true
			orphans = append(orphans, n)
			tree.Anomalies = append(tree.Anomalies, Anomaly{Kind: AnomalyDanglingParent, NodeID: n.NodeID, ParentID: n.ParentNode})
		case parent.isDescendantOf(n):
			n.Orphan = true
			orphans = append(orphans, n)
			tree.Anomalies = append(tree.Anomalies, Anomaly{Kind: AnomalyCycle, NodeID: n.NodeID, ParentID: n.ParentNode})
		default:
			parent.Children = append(parent.Children, n)
			n.parent = parent
		}
	}
	tree.Roots = append(tree.Roots, orphans...)

	tree.Depth = maxDepth(rows)
	tree.Summary = Summarize(rows)
	tree.Path = displayPath(tree.Root())

	if b.Logger != nil {
		for _, a := range tree.Anomalies {
			b.Logger.Warn("trace anomaly", "kind", a.Kind, "node_id", a.NodeID, "parent_id", a.ParentID)
		}
	}
	return tree, true
}

// Summarize computes the aggregate block for rows.
func Summarize(rows []Row) Summary {
	s := Summary{TotalNodes: len(rows), QAStatus: Rollup(rows)}
	passed := 0
	for _, r := range rows {
		s.TotalQuantity += r.Quantity
		if r.QAStatus == QAPassed && r.Quantity > 0 {
			passed++
		}
	}
	s.TraceCompleteness = Completeness(passed, len(rows))
	return s
}

// Rollup returns the most severe status present. Failed outranks
// Quarantine, which outranks Pending. A set that is entirely Passed rolls up
// to Passed; anything else is Mixed.
func Rollup(rows []Row) QAStatus {
	var failed, quarantine, pending bool
	allPassed := len(rows) > 0
	for _, r := range rows {
		switch r.QAStatus {
		case QAFailed:
			failed = true
		case QAQuarantine:
			quarantine = true
		case QAPending:
			pending = true
		}
		if r.QAStatus != QAPassed {
			allPassed = false
		}
	}
	switch {
	case failed:
		return QAFailed
	case quarantine:
		return QAQuarantine
	case pending:
		return QAPending
	case allPassed:
		return QAPassed
	default:
		return QAMixed
	}
}

// Completeness returns round(100*passed/total), clamped to [0,100].
func Completeness(passed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(passed) / float64(total)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func maxDepth(rows []Row) int {
	depth := 0
	for _, r := range rows {
		if r.Depth > depth {
			depth = r.Depth
		}
	}
	return depth
}

// displayPath follows the first deepest branch under root.
func displayPath(root *Node) []string {
	if root == nil {
		return nil
	}
	var best []string
	var walk func(n *Node, acc []string)
	walk = func(n *Node, acc []string) {
		acc = append(acc, n.NodeNumber)
		if len(acc) > len(best) {
			best = append(best[:0:0], acc...)
		}
		for _, c := range n.Children {
			walk(c, acc)
		}
	}
	walk(root, nil)
	return best
}
