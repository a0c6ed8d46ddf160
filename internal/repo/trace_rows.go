package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"traceline/internal/trace"
)

// Direction selects which way a genealogy traversal walks.
type Direction string

const (
	// Forward walks from a plate to everything made from it.
	Forward Direction = "forward"
	// Backward walks from a plate to everything it was made from.
	Backward Direction = "backward"
)

// ParseDirection accepts forward/backward, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Forward:
		return Forward, nil
	case Backward:
		return Backward, nil
	}
	return "", fmt.Errorf("invalid direction %q: expected forward or backward", s)
}

// NodeTypeLicensePlate is the node_type of every row this store produces.
const NodeTypeLicensePlate = "license_plate"

const pathSep = "|"

// TraceQuery parameterizes TraceRows.
type TraceQuery struct {
	OrgID           string
	LPNumber        string
	Direction       Direction
	MaxDepth        int
	IncludeReversed bool
}

// traceSQL is a recursive walk over genealogy_links starting at one plate.
// %[1]s is the link column matched against the current node and %[2]s the
// column holding the next node. Revisiting a plate already on the path is cut.
// A plate reached along several paths keeps only its shallowest path, ties
// broken by path order, so every plate appears once.
const traceSQL = `
WITH RECURSIVE walk(node_id, parent_node, depth, path) AS (
  SELECT lp.id, NULL, 0, '|' || lp.lp_number || '|'
  FROM license_plates lp
  WHERE lp.org_id = ? AND lp.lp_number = ?
  UNION
  SELECT g.%[2]s, w.node_id, w.depth + 1, w.path || nxt.lp_number || '|'
  FROM walk w
  JOIN genealogy_links g ON g.%[1]s = w.node_id AND g.org_id = ? AND (g.is_reversed = 0 OR ? = 1)
  JOIN license_plates nxt ON nxt.id = g.%[2]s
  WHERE w.depth < ? AND instr(w.path, '|' || nxt.lp_number || '|') = 0
)
SELECT w.node_id, lp.lp_number, lp.product_description, lp.quantity, lp.uom, lp.qa_status,
  COALESCE(lp.stage_suffix, ''), COALESCE(lp.location, ''), COALESCE(w.parent_node, ''), w.depth, w.path
FROM (
  SELECT node_id, parent_node, depth, path,
    ROW_NUMBER() OVER (PARTITION BY node_id ORDER BY depth ASC, path ASC) AS rn
  FROM walk
) w
JOIN license_plates lp ON lp.id = w.node_id
WHERE w.rn = 1
ORDER BY w.depth ASC, w.path ASC`

// TraceRows runs the genealogy traversal and returns one row per visited
// plate, the starting plate first at depth 0. An unknown plate yields no rows.
func (r Repo) TraceRows(ctx context.Context, q TraceQuery) ([]trace.Row, error) {
	var from, to string
	switch q.Direction {
	case Forward:
		from, to = "parent_lp_id", "child_lp_id"
	case Backward:
		from, to = "child_lp_id", "parent_lp_id"
	default:
		return nil, fmt.Errorf("invalid direction %q", q.Direction)
	}
	if q.MaxDepth < 0 {
		return nil, fmt.Errorf("invalid max depth %d", q.MaxDepth)
	}
	includeReversed := 0
	if q.IncludeReversed {
		includeReversed = 1
	}
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(traceSQL, from, to),
		q.OrgID, q.LPNumber, q.OrgID, includeReversed, q.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("trace %s %s: %w", q.Direction, q.LPNumber, err)
	}
	defer rows.Close()
	var out []trace.Row
	for rows.Next() {
		var row trace.Row
		var qty, qa, rawPath string
		if err := rows.Scan(&row.NodeID, &row.NodeNumber, &row.ProductDescription, &qty, &row.UOM, &qa,
			&row.StageSuffix, &row.Location, &row.ParentNode, &row.Depth, &rawPath); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("license plate %s has invalid quantity %q: %w", row.NodeNumber, qty, err)
		}
		row.Quantity = d.InexactFloat64()
		row.QAStatus = trace.QAStatus(qa)
		row.NodeType = NodeTypeLicensePlate
		row.Path = splitPath(rawPath)
		out = append(out, row)
	}
	return out, rows.Err()
}

func splitPath(raw string) []string {
	raw = strings.Trim(raw, pathSep)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, pathSep)
}
