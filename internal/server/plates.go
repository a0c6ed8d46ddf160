package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

func registerLicensePlates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-license-plate",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/license-plates",
		Summary:       "Create license plate",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  CreateLicensePlateRequest
	}) (*struct {
		Body domain.LicensePlate `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "lp.write")
		if err != nil {
			return nil, handleError(err)
		}
		lp, err := e.CreateLicensePlate(ctx, engine.LicensePlateCreate{
			OrgID:              input.OrgID,
			LPNumber:           input.Body.LPNumber,
			ProductDescription: input.Body.ProductDescription,
			Quantity:           input.Body.Quantity,
			UOM:                input.Body.UOM,
			QAStatus:           input.Body.QAStatus,
			StageSuffix:        input.Body.StageSuffix,
			Location:           input.Body.Location,
			WOID:               input.Body.WOID,
			ActorID:            principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LicensePlate `json:"body"`
		}{Body: lp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-license-plates",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/license-plates",
		Summary:     "List license plates",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		QAStatus string `query:"qa_status" enum:"Passed,Failed,Quarantine,Pending,"`
		WOID     string `query:"wo_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedLicensePlates `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.OrgID, "lp.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListLicensePlates(ctx, input.OrgID, repo.LicensePlateFilter{
			QAStatus: input.QAStatus,
			WOID:     input.WOID,
			Limit:    limit + 1,
			Cursor:   input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedLicensePlates{Items: []domain.LicensePlate{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = items[limit-1].LPNumber
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedLicensePlates `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-license-plate",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/license-plates/{lp_number}",
		Summary:     "Get license plate by number",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		LPNumber string `path:"lp_number"`
	}) (*struct {
		Body domain.LicensePlate `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.OrgID, "lp.read"); err != nil {
			return nil, handleError(err)
		}
		lp, err := e.GetLicensePlateByNumber(ctx, input.OrgID, input.LPNumber)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LicensePlate `json:"body"`
		}{Body: lp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-inspection",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/license-plates/{lp_number}/inspections",
		Summary:       "Record a QA inspection and update the plate status",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		LPNumber string `path:"lp_number"`
		Body     RecordInspectionRequest
	}) (*struct {
		Body domain.Inspection `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "inspection.write")
		if err != nil {
			return nil, handleError(err)
		}
		in, err := e.RecordInspection(ctx, engine.InspectionCreate{
			OrgID:    input.OrgID,
			LPNumber: input.LPNumber,
			Result:   input.Body.Result,
			Notes:    input.Body.Notes,
			ActorID:  principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Inspection `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inspections",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/license-plates/{lp_number}/inspections",
		Summary:     "List inspections of a plate, newest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		LPNumber string `path:"lp_number"`
	}) (*struct {
		Body []domain.Inspection `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.OrgID, "lp.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListInspections(ctx, input.OrgID, input.LPNumber)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Inspection{}
		}
		return &struct {
			Body []domain.Inspection `json:"body"`
		}{Body: items}, nil
	})
}
