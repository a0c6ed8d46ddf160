package trace

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"
)

func row(id, parent string, depth int, qty float64, qa QAStatus) Row {
	return Row{
		NodeID:     id,
		NodeType:   "license_plate",
		NodeNumber: strings.ToUpper(id),
		Quantity:   qty,
		UOM:        "KG",
		QAStatus:   qa,
		ParentNode: parent,
		Depth:      depth,
	}
}

func countNodes(t *Tree) int {
	n := 0
	t.Walk(func(*Node, int) { n++ })
	return n
}

func TestBuildRootWithTwoChildren(t *testing.T) {
	tree, ok := Build([]Row{
		row("root", "", 0, 10, QAPassed),
		row("a", "root", 1, 5, QAPassed),
		row("b", "root", 1, 3, QAFailed),
	})
	if !ok {
		t.Fatalf("expected tree")
	}
	if len(tree.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(tree.Roots))
	}
	root := tree.Root()
	if len(root.Children) != 2 || root.Children[0].NodeID != "a" || root.Children[1].NodeID != "b" {
		t.Fatalf("unexpected children: %+v", root.Children)
	}
	if root.Children[0].Parent() != root {
		t.Fatalf("child parent not wired")
	}
	if tree.Summary.TotalQuantity != 18 {
		t.Fatalf("total quantity %v", tree.Summary.TotalQuantity)
	}
	if tree.Summary.QAStatus != QAFailed {
		t.Fatalf("qa status %s", tree.Summary.QAStatus)
	}
	if tree.Summary.TraceCompleteness != 33 {
		t.Fatalf("completeness %d", tree.Summary.TraceCompleteness)
	}
	if tree.Depth != 1 {
		t.Fatalf("depth %d", tree.Depth)
	}
	if !reflect.DeepEqual(tree.Path, []string{"ROOT", "A"}) {
		t.Fatalf("path %v", tree.Path)
	}
	if len(tree.Anomalies) != 0 {
		t.Fatalf("unexpected anomalies %+v", tree.Anomalies)
	}
}

func TestBuildSingleRow(t *testing.T) {
	tree, ok := Build([]Row{row("lp", "", 0, 7, QAPassed)})
	if !ok {
		t.Fatalf("expected tree")
	}
	if len(tree.Roots) != 1 || len(tree.Root().Children) != 0 {
		t.Fatalf("unexpected shape")
	}
	if tree.Summary.TotalQuantity != 7 || tree.Summary.QAStatus != QAPassed || tree.Summary.TraceCompleteness != 100 {
		t.Fatalf("unexpected summary %+v", tree.Summary)
	}
	if tree.Depth != 0 {
		t.Fatalf("depth %d", tree.Depth)
	}
}

func TestBuildEmpty(t *testing.T) {
	if tree, ok := Build([]Row{}); ok || tree != nil {
		t.Fatalf("expected no data for empty rows")
	}
	if tree, ok := Build(nil); ok || tree != nil {
		t.Fatalf("expected no data for nil rows")
	}
}

func TestBuildDanglingParentBecomesRoot(t *testing.T) {
	tree, ok := Build([]Row{
		row("root", "", 0, 1, QAPassed),
		row("a", "root", 1, 1, QAPassed),
		row("x", "missing", 2, 1, QAPassed),
	})
	if !ok {
		t.Fatalf("expected tree")
	}
	if len(tree.Roots) != 2 {
		t.Fatalf("expected orphan root, got %d roots", len(tree.Roots))
	}
	orphan := tree.Roots[1]
	if orphan.NodeID != "x" || !orphan.Orphan || orphan.Parent() != nil {
		t.Fatalf("unexpected orphan %+v", orphan)
	}
	if tree.Root().NodeID != "root" {
		t.Fatalf("primary root changed to %s", tree.Root().NodeID)
	}
	if got := countNodes(tree); got != 3 {
		t.Fatalf("expected 3 reachable nodes, got %d", got)
	}
	if len(tree.Anomalies) != 1 || tree.Anomalies[0].Kind != AnomalyDanglingParent || tree.Anomalies[0].ParentID != "missing" {
		t.Fatalf("unexpected anomalies %+v", tree.Anomalies)
	}
}

func TestBuildMissingParentFieldBecomesRoot(t *testing.T) {
	tree, _ := Build([]Row{
		row("root", "", 0, 1, QAPassed),
		row("a", "", 1, 1, QAPassed),
	})
	if len(tree.Roots) != 2 || !tree.Roots[1].Orphan {
		t.Fatalf("expected orphan for row without parent")
	}
}

func TestBuildMultipleDepthZeroRoots(t *testing.T) {
	tree, ok := Build([]Row{
		row("r1", "", 0, 4, QAPassed),
		row("r2", "", 0, 6, QAPending),
		row("c2", "r2", 1, 2, QAPassed),
	})
	if !ok {
		t.Fatalf("expected tree")
	}
	if len(tree.Roots) != 2 || tree.Roots[0].NodeID != "r1" || tree.Roots[1].NodeID != "r2" {
		t.Fatalf("unexpected roots")
	}
	if tree.Roots[1].Orphan {
		t.Fatalf("depth-0 root must not be flagged orphan")
	}
	if tree.Summary.TotalQuantity != 12 || tree.Summary.QAStatus != QAPending {
		t.Fatalf("summary must cover both subtrees: %+v", tree.Summary)
	}
	if !reflect.DeepEqual(tree.Path, []string{"R1"}) {
		t.Fatalf("path should follow primary root, got %v", tree.Path)
	}
	if countNodes(tree) != 3 {
		t.Fatalf("node loss")
	}
}

func TestBuildDepthIsRootMarker(t *testing.T) {
	// parent_node set on a depth-0 row is ignored.
	tree, _ := Build([]Row{
		row("r", "ghost", 0, 1, QAPassed),
		row("c", "r", 1, 1, QAPassed),
	})
	if len(tree.Roots) != 1 || tree.Root().Orphan || len(tree.Anomalies) != 0 {
		t.Fatalf("depth-0 row should be a plain root")
	}
}

func TestBuildDuplicateIDLastRowWins(t *testing.T) {
	tree, ok := Build([]Row{
		row("root", "", 0, 1, QAPassed),
		row("dup", "root", 1, 1, QAPassed),
		row("dup", "root", 1, 2, QAPassed),
		row("leaf", "dup", 2, 3, QAPassed),
	})
	if !ok {
		t.Fatalf("expected tree")
	}
	root := tree.Root()
	if len(root.Children) != 2 {
		t.Fatalf("both duplicate rows should be kept, got %d", len(root.Children))
	}
	if len(root.Children[0].Children) != 0 || len(root.Children[1].Children) != 1 {
		t.Fatalf("leaf should attach to the last duplicate")
	}
	if countNodes(tree) != 4 {
		t.Fatalf("node loss")
	}
	if len(tree.Anomalies) != 1 || tree.Anomalies[0].Kind != AnomalyDuplicateID {
		t.Fatalf("unexpected anomalies %+v", tree.Anomalies)
	}
}

func TestBuildCycleBecomesRoot(t *testing.T) {
	tree, ok := Build([]Row{
		row("a", "b", 1, 1, QAPassed),
		row("b", "a", 1, 1, QAPassed),
		row("s", "s", 2, 1, QAPassed),
	})
	if !ok {
		t.Fatalf("expected tree")
	}
	if countNodes(tree) != 3 {
		t.Fatalf("expected all nodes reachable, got %d", countNodes(tree))
	}
	var cycles int
	for _, a := range tree.Anomalies {
		if a.Kind == AnomalyCycle {
			cycles++
		}
	}
	if cycles != 2 {
		t.Fatalf("expected 2 cycle anomalies, got %+v", tree.Anomalies)
	}
	if len(tree.Roots) != 2 {
		t.Fatalf("expected 2 orphan roots, got %d", len(tree.Roots))
	}
}

func TestBuildIdempotent(t *testing.T) {
	rows := []Row{
		row("root", "", 0, 10, QAPassed),
		row("a", "root", 1, 5, QAQuarantine),
		row("b", "a", 2, 3, QAPassed),
		row("x", "nope", 3, 1, QAPassed),
	}
	first, _ := Build(rows)
	second, _ := Build(rows)
	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("builds differ:\n%s\n%s", a, b)
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	rows := []Row{row("root", "", 0, 1, QAPassed)}
	rows[0].Path = []string{"ROOT"}
	tree, _ := Build(rows)
	tree.Root().Path[0] = "changed"
	if rows[0].Path[0] != "ROOT" {
		t.Fatalf("input row mutated")
	}
}

func TestRollupPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		statuses []QAStatus
		want     QAStatus
	}{
		{"failed wins over passed", []QAStatus{QAPassed, QAPassed, QAPassed, QAFailed}, QAFailed},
		{"failed wins over quarantine", []QAStatus{QAQuarantine, QAFailed, QAPending}, QAFailed},
		{"quarantine without failed", []QAStatus{QAPassed, QAQuarantine, QAPending}, QAQuarantine},
		{"pending", []QAStatus{QAPassed, QAPending}, QAPending},
		{"all passed", []QAStatus{QAPassed, QAPassed}, QAPassed},
		{"unknown status is mixed", []QAStatus{QAPassed, "Released"}, QAMixed},
		{"only unknown", []QAStatus{""}, QAMixed},
		{"failed beats unknown", []QAStatus{"weird", QAFailed}, QAFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rows []Row
			for i, s := range tc.statuses {
				rows = append(rows, Row{NodeID: string(rune('a' + i)), QAStatus: s})
			}
			if got := Rollup(rows); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestSummaryConservationAndBounds(t *testing.T) {
	rows := []Row{
		row("root", "", 0, 2.5, QAPassed),
		row("a", "root", 1, -1, QAPassed),
		row("b", "root", 1, 0, QAPassed),
		row("c", "a", 2, 4.25, QAPending),
	}
	tree, _ := Build(rows)
	var sum float64
	for _, r := range rows {
		sum += r.Quantity
	}
	if tree.Summary.TotalQuantity != sum {
		t.Fatalf("total %v want %v", tree.Summary.TotalQuantity, sum)
	}
	// only root is Passed with positive quantity
	if tree.Summary.TraceCompleteness != 25 {
		t.Fatalf("completeness %d", tree.Summary.TraceCompleteness)
	}
	if tree.Summary.TotalNodes != 4 {
		t.Fatalf("total nodes %d", tree.Summary.TotalNodes)
	}
}

func TestSummaryPassesNonFiniteQuantity(t *testing.T) {
	tree, _ := Build([]Row{
		row("root", "", 0, math.Inf(1), QAPassed),
		row("a", "root", 1, 1, QAPassed),
	})
	if !math.IsInf(tree.Summary.TotalQuantity, 1) {
		t.Fatalf("expected +Inf total, got %v", tree.Summary.TotalQuantity)
	}
	if c := tree.Summary.TraceCompleteness; c < 0 || c > 100 {
		t.Fatalf("completeness out of range: %d", c)
	}
}

func TestCompletenessRounding(t *testing.T) {
	cases := []struct{ passed, total, want int }{
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{0, 5, 0},
		{5, 5, 100},
		{0, 0, 0},
	}
	for _, tc := range cases {
		if got := Completeness(tc.passed, tc.total); got != tc.want {
			t.Errorf("Completeness(%d,%d)=%d want %d", tc.passed, tc.total, got, tc.want)
		}
	}
}

func TestAncestors(t *testing.T) {
	tree, _ := Build([]Row{
		row("r", "", 0, 1, QAPassed),
		row("a", "r", 1, 1, QAPassed),
		row("b", "a", 2, 1, QAPassed),
	})
	leaf := tree.Root().Children[0].Children[0]
	if got := leaf.Ancestors(); !reflect.DeepEqual(got, []string{"R", "A"}) {
		t.Fatalf("ancestors %v", got)
	}
}

func TestBuilderLogsAnomalies(t *testing.T) {
	var buf bytes.Buffer
	b := Builder{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	b.Build([]Row{row("r", "", 0, 1, QAPassed), row("x", "gone", 1, 1, QAPassed)})
	if !strings.Contains(buf.String(), "dangling_parent") {
		t.Fatalf("expected anomaly log, got %q", buf.String())
	}
}

func TestNodeJSONOmitsParent(t *testing.T) {
	tree, _ := Build([]Row{row("r", "", 0, 1, QAPassed), row("a", "r", 1, 1, QAPassed)})
	data, err := json.Marshal(tree.Root())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "\"parent\"") {
		t.Fatalf("parent must not be serialized: %s", data)
	}
}

func TestFlattenDepthFirst(t *testing.T) {
	tree, _ := Build([]Row{
		row("r", "", 0, 1, QAPassed),
		row("a", "r", 1, 1, QAPassed),
		row("b", "r", 1, 1, QAPassed),
		row("a1", "a", 2, 1, QAPassed),
		row("o", "missing", 1, 1, QAPassed),
	})
	flat := Flatten(tree)
	var order []string
	for _, f := range flat {
		order = append(order, f.NodeID)
	}
	if !reflect.DeepEqual(order, []string{"r", "a", "a1", "b", "o"}) {
		t.Fatalf("order %v", order)
	}
	if flat[2].Level != 2 || flat[2].ParentNumber != "A" {
		t.Fatalf("unexpected flat row %+v", flat[2])
	}
	if !flat[4].Orphan || flat[4].Level != 0 {
		t.Fatalf("orphan row %+v", flat[4])
	}
	if Flatten(nil) != nil {
		t.Fatalf("nil tree should flatten to nil")
	}
}
