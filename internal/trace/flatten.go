package trace

import "strings"

// FlatRow is one exported line of a tree.
type FlatRow struct {
	Level              int      `json:"level"`
	NodeID             string   `json:"node_id"`
	NodeType           string   `json:"node_type"`
	NodeNumber         string   `json:"node_number"`
	ParentNumber       string   `json:"parent_number,omitempty"`
	ProductDescription string   `json:"product_description"`
	Quantity           float64  `json:"quantity"`
	UOM                string   `json:"uom"`
	QAStatus           QAStatus `json:"qa_status"`
	StageSuffix        string   `json:"stage_suffix,omitempty"`
	Location           string   `json:"location,omitempty"`
	Depth              int      `json:"depth"`
	Orphan             bool     `json:"orphan,omitempty"`
	Path               string   `json:"path,omitempty"`
}

// Flatten lists every node of t depth-first, roots in order.
func Flatten(t *Tree) []FlatRow {
	if t == nil {
		return nil
	}
	out := make([]FlatRow, 0, t.Summary.TotalNodes)
	t.Walk(func(n *Node, level int) {
		row := FlatRow{
			Level:              level,
			NodeID:             n.NodeID,
			NodeType:           n.NodeType,
			NodeNumber:         n.NodeNumber,
			ProductDescription: n.ProductDescription,
			Quantity:           n.Quantity,
			UOM:                n.UOM,
			QAStatus:           n.QAStatus,
			StageSuffix:        n.StageSuffix,
			Location:           n.Location,
			Depth:              n.Depth,
			Orphan:             n.Orphan,
			Path:               strings.Join(n.Path, " > "),
		}
		if p := n.Parent(); p != nil {
			row.ParentNumber = p.NodeNumber
		}
		out = append(out, row)
	})
	return out
}
