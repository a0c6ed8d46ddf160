package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/engine"
	"traceline/internal/export"
	"traceline/internal/repo"
	"traceline/internal/trace"
)

type traceQuery struct {
	OrgID           string `path:"org_id"`
	LP              string `query:"lp" required:"true" doc:"License plate number to start from"`
	MaxDepth        int    `query:"max_depth" minimum:"0" maximum:"50" doc:"0 uses the configured default"`
	IncludeReversed string `query:"include_reversed" enum:"true,false," doc:"Follow reversed links; defaults to config"`
}

func (q traceQuery) request(direction repo.Direction) (engine.TraceRequest, error) {
	req := engine.TraceRequest{
		OrgID:     q.OrgID,
		LPNumber:  q.LP,
		Direction: string(direction),
		MaxDepth:  q.MaxDepth,
	}
	if q.IncludeReversed != "" {
		v, err := strconv.ParseBool(q.IncludeReversed)
		if err != nil {
			return req, engine.ValidationError{Msg: "invalid include_reversed"}
		}
		req.IncludeReversed = &v
	}
	return req, nil
}

func registerTrace(api huma.API, e engine.Engine) {
	for _, dir := range []repo.Direction{repo.Forward, repo.Backward} {
		dir := dir
		summary := "Trace everything made from a license plate"
		if dir == repo.Backward {
			summary = "Trace everything a license plate was made from"
		}
		huma.Register(api, huma.Operation{
			OperationID: "trace-" + string(dir),
			Method:      http.MethodGet,
			Path:        "/orgs/{org_id}/trace/" + string(dir),
			Summary:     summary,
			Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
		}, func(ctx context.Context, input *traceQuery) (*struct {
			Body TraceResponse `json:"body"`
		}, error) {
			if _, err := requirePermission(ctx, e, input.OrgID, "genealogy.read"); err != nil {
				return nil, handleError(err)
			}
			req, err := input.request(dir)
			if err != nil {
				return nil, handleError(err)
			}
			res, err := e.Trace(ctx, req)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body TraceResponse `json:"body"`
			}{Body: traceResponse(res)}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "trace-export",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/trace/export",
		Summary:     "Export a trace as flat rows",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		traceQuery
		Direction string `query:"direction" enum:"forward,backward" default:"forward"`
		Format    string `query:"format" enum:"csv,json" default:"csv"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		if _, err := requirePermission(ctx, e, input.OrgID, "genealogy.read"); err != nil {
			return nil, handleError(err)
		}
		dir, err := repo.ParseDirection(input.Direction)
		if err != nil {
			return nil, handleError(engine.ValidationError{Msg: err.Error()})
		}
		req, err := input.request(dir)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Trace(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		if !res.Found {
			return nil, newAPIError(http.StatusNotFound, "not_found", res.Message, map[string]any{"lp": input.LP})
		}
		rows := trace.Flatten(res.Tree)
		out := &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{}
		name := "trace-" + string(dir) + "-" + input.LP
		if input.Format == "json" {
			data, err := json.Marshal(rows)
			if err != nil {
				return nil, handleError(err)
			}
			out.ContentType = "application/json"
			out.ContentDisposition = `attachment; filename="` + name + `.json"`
			out.Body = data
			return out, nil
		}
		out.ContentType = "text/csv"
		out.ContentDisposition = `attachment; filename="` + name + `.csv"`
		out.Body = []byte(export.CSV(rows))
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "license-plate-genealogy",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/license-plates/{lp_number}/genealogy",
		Summary:     "Backward and forward genealogy of a license plate",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		LPNumber string `path:"lp_number"`
		MaxDepth int    `query:"max_depth" minimum:"0" maximum:"50"`
	}) (*struct {
		Body GenealogyResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.OrgID, "genealogy.read"); err != nil {
			return nil, handleError(err)
		}
		g, err := e.Genealogy(ctx, input.OrgID, input.LPNumber, input.MaxDepth)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenealogyResponse `json:"body"`
		}{Body: GenealogyResponse{
			LicensePlate: g.LicensePlate,
			Backward:     traceResponse(g.Backward),
			Forward:      traceResponse(g.Forward),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "work-order-genealogy",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/work-orders/{wo_id}/genealogy",
		Summary:     "Genealogy links recorded for a work order, grouped by operation",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		WOID  string `path:"wo_id"`
	}) (*struct {
		Body engine.WorkOrderGenealogy `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.OrgID, "genealogy.read"); err != nil {
			return nil, handleError(err)
		}
		wo, err := e.WorkOrderGenealogy(ctx, input.OrgID, input.WOID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WorkOrderGenealogy `json:"body"`
		}{Body: wo}, nil
	})
}
