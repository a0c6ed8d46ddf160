// Package export renders flattened trace trees for people and spreadsheets.
package export

import (
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"traceline/internal/trace"
)

var header = table.Row{"level", "node_number", "node_type", "parent", "product", "quantity", "uom", "qa_status", "depth", "orphan", "path"}

func newWriter(rows []trace.FlatRow, indent bool) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(header)
	for _, r := range rows {
		number := r.NodeNumber
		if indent {
			number = strings.Repeat("  ", r.Level) + number
		}
		t.AppendRow(table.Row{
			r.Level,
			number,
			r.NodeType,
			r.ParentNumber,
			r.ProductDescription,
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			r.UOM,
			string(r.QAStatus),
			r.Depth,
			r.Orphan,
			r.Path,
		})
	}
	return t
}

// CSV renders rows with a header line.
func CSV(rows []trace.FlatRow) string {
	return newWriter(rows, false).RenderCSV() + "\n"
}

// Table renders rows as an indented box table.
func Table(rows []trace.FlatRow) string {
	t := newWriter(rows, true)
	t.SetStyle(table.StyleLight)
	return t.Render()
}

// Summary renders the aggregate block of a tree.
func Summary(s trace.Summary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"total_nodes", "total_quantity", "qa_status", "trace_completeness"})
	t.AppendRow(table.Row{s.TotalNodes, strconv.FormatFloat(s.TotalQuantity, 'f', -1, 64), string(s.QAStatus), strconv.Itoa(s.TraceCompleteness) + "%"})
	t.SetStyle(table.StyleLight)
	return t.Render()
}
