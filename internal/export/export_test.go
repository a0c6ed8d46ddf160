package export

import (
	"strings"
	"testing"

	"traceline/internal/trace"
)

func sampleTree(t *testing.T) *trace.Tree {
	t.Helper()
	tree, ok := trace.Build([]trace.Row{
		{NodeID: "1", NodeType: "license_plate", NodeNumber: "LP-1", ProductDescription: "Flour, fine", Quantity: 10, UOM: "kg", QAStatus: trace.QAPassed, Depth: 0},
		{NodeID: "2", NodeType: "license_plate", NodeNumber: "LP-2", ParentNode: "1", Quantity: 2.5, UOM: "kg", QAStatus: trace.QAFailed, Depth: 1},
	})
	if !ok {
		t.Fatalf("expected tree")
	}
	return tree
}

func TestCSV(t *testing.T) {
	out := CSV(trace.Flatten(sampleTree(t)))
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(strings.ToLower(lines[0]), "level,node_number,node_type,parent") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,LP-1,license_plate,,") || !strings.Contains(lines[1], "Flour") {
		t.Fatalf("unexpected root row %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "1,LP-2,license_plate,LP-1,") || !strings.Contains(lines[2], "2.5") {
		t.Fatalf("unexpected child row %q", lines[2])
	}
}

func TestTableIndentsChildren(t *testing.T) {
	out := Table(trace.Flatten(sampleTree(t)))
	if !strings.Contains(out, "  LP-2") {
		t.Fatalf("child not indented:\n%s", out)
	}
	if !strings.Contains(Summary(sampleTree(t).Summary), "50%") {
		t.Fatalf("summary missing completeness")
	}
}

func TestCSVEmpty(t *testing.T) {
	out := CSV(nil)
	if strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Fatalf("expected header only, got %q", out)
	}
}
