package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"traceline/internal/config"
	"traceline/internal/domain"
	"traceline/internal/repo"
	"traceline/internal/trace"
)

// TraceRequest asks for a forward or backward trace from one plate.
type TraceRequest struct {
	OrgID     string
	LPNumber  string
	Direction string
	// MaxDepth of 0 uses the configured default.
	MaxDepth int
	// IncludeReversed overrides the configured default when set.
	IncludeReversed *bool
}

// TraceResult is the outcome of a trace. Found is false, with Message set,
// when the traversal returned no rows. TotalCount is the number of rows
// the store returned.
type TraceResult struct {
	Direction     repo.Direction `json:"direction"`
	LPNumber      string         `json:"lp_number"`
	Found         bool           `json:"found"`
	Message       string         `json:"message,omitempty"`
	Tree          *trace.Tree    `json:"tree,omitempty"`
	HasMoreLevels bool           `json:"has_more_levels"`
	TotalCount    int            `json:"total_count"`
	MaxDepth      int            `json:"max_depth"`
}

// NotFoundMessage is the message of a trace that matched nothing.
func NotFoundMessage(lpNumber string) string {
	return fmt.Sprintf("No trace data found for LP %s", lpNumber)
}

func (e Engine) Trace(ctx context.Context, req TraceRequest) (TraceResult, error) {
	dir, err := repo.ParseDirection(req.Direction)
	if err != nil {
		return TraceResult{}, ValidationError{Msg: err.Error()}
	}
	number := strings.TrimSpace(req.LPNumber)
	if number == "" {
		return TraceResult{}, invalid("lp_number required")
	}
	depth := req.MaxDepth
	if depth == 0 {
		depth = e.Config.MaxDepth()
	}
	if depth < 1 || depth > config.HardMaxDepth {
		return TraceResult{}, invalid("invalid max_depth %d: must be between 1 and %d", req.MaxDepth, config.HardMaxDepth)
	}
	includeReversed := e.Config != nil && e.Config.Trace.IncludeReversed
	if req.IncludeReversed != nil {
		includeReversed = *req.IncludeReversed
	}

	timer := prometheus.NewTimer(traceDuration.WithLabelValues(string(dir)))
	defer timer.ObserveDuration()

	rows, err := e.Repo.TraceRows(ctx, repo.TraceQuery{
		OrgID:           req.OrgID,
		LPNumber:        number,
		Direction:       dir,
		MaxDepth:        depth,
		IncludeReversed: includeReversed,
	})
	if err != nil {
		traceBuilds.WithLabelValues(string(dir), "error").Inc()
		return TraceResult{}, err
	}
	res := TraceResult{Direction: dir, LPNumber: number, MaxDepth: depth, TotalCount: len(rows)}
	tree, ok := trace.Builder{Logger: e.logger().With("direction", string(dir), "lp_number", number)}.Build(rows)
	if !ok {
		traceBuilds.WithLabelValues(string(dir), "not_found").Inc()
		res.Message = NotFoundMessage(number)
		return res, nil
	}
	res.Found = true
	res.Tree = tree
	for _, r := range rows {
		if r.Depth >= depth {
			res.HasMoreLevels = true
			break
		}
	}
	for _, a := range tree.Anomalies {
		traceAnomalies.WithLabelValues(string(a.Kind)).Inc()
	}
	traceBuilds.WithLabelValues(string(dir), "found").Inc()
	traceNodes.WithLabelValues(string(dir)).Observe(float64(tree.Summary.TotalNodes))
	return res, nil
}

// GenealogyResult holds both directions of a plate's genealogy.
type GenealogyResult struct {
	LicensePlate domain.LicensePlate `json:"license_plate"`
	Backward     TraceResult         `json:"backward"`
	Forward      TraceResult         `json:"forward"`
}

// Genealogy runs the backward and forward traces of a plate concurrently.
func (e Engine) Genealogy(ctx context.Context, orgID, lpNumber string, maxDepth int) (GenealogyResult, error) {
	lp, err := e.GetLicensePlateByNumber(ctx, orgID, lpNumber)
	if err != nil {
		return GenealogyResult{}, err
	}
	res := GenealogyResult{LicensePlate: lp}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.Backward, err = e.Trace(gctx, TraceRequest{OrgID: orgID, LPNumber: lp.LPNumber, Direction: string(repo.Backward), MaxDepth: maxDepth})
		return err
	})
	g.Go(func() error {
		var err error
		res.Forward, err = e.Trace(gctx, TraceRequest{OrgID: orgID, LPNumber: lp.LPNumber, Direction: string(repo.Forward), MaxDepth: maxDepth})
		return err
	})
	if err := g.Wait(); err != nil {
		return GenealogyResult{}, err
	}
	return res, nil
}
