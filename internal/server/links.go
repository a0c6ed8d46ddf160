package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"traceline/internal/engine"
)

// requireUUIDs rejects ids that are not UUIDs before touching the store.
func requireUUIDs(fields map[string][]string) error {
	for field, ids := range fields {
		for _, id := range ids {
			if _, err := uuid.Parse(id); err != nil {
				return engine.ValidationError{Msg: fmt.Sprintf("invalid %s %q: must be a uuid", field, id)}
			}
		}
	}
	return nil
}

func registerLinks(api huma.API, e engine.Engine) {
	linkErrors := []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}

	huma.Register(api, huma.Operation{
		OperationID:   "link-consumption",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/genealogy/link-consumption",
		Summary:       "Record a parent plate consumed into a child",
		DefaultStatus: http.StatusCreated,
		Errors:        linkErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  LinkConsumptionRequest
	}) (*struct {
		Body LinkCreatedResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "genealogy.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireUUIDs(map[string][]string{
			"parent_lp_id": {input.Body.ParentLPID},
			"child_lp_id":  {input.Body.ChildLPID},
		}); err != nil {
			return nil, handleError(err)
		}
		l, err := e.LinkConsumption(ctx, engine.LinkConsumptionOptions{
			OrgID:       input.OrgID,
			ParentLPID:  input.Body.ParentLPID,
			ChildLPID:   input.Body.ChildLPID,
			Quantity:    input.Body.Quantity,
			WOID:        input.Body.WOID,
			OperationID: input.Body.OperationID,
			ActorID:     principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkCreatedResponse `json:"body"`
		}{Body: LinkCreatedResponse{ID: l.ID, Created: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "link-output",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/genealogy/link-output",
		Summary:       "Record the plates consumed to produce an output plate",
		DefaultStatus: http.StatusCreated,
		Errors:        linkErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  LinkOutputRequest
	}) (*struct {
		Body LinksCreatedResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "genealogy.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireUUIDs(map[string][]string{
			"consumed_lp_ids": input.Body.ConsumedLPIDs,
			"output_lp_id":    {input.Body.OutputLPID},
		}); err != nil {
			return nil, handleError(err)
		}
		links, err := e.LinkOutput(ctx, engine.LinkOutputOptions{
			OrgID:         input.OrgID,
			ConsumedLPIDs: input.Body.ConsumedLPIDs,
			OutputLPID:    input.Body.OutputLPID,
			WOID:          input.Body.WOID,
			OperationID:   input.Body.OperationID,
			ActorID:       principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinksCreatedResponse `json:"body"`
		}{Body: LinksCreatedResponse{IDs: linkIDs(links), Created: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "link-split",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/genealogy/link-split",
		Summary:       "Record a new plate split off a source plate",
		DefaultStatus: http.StatusCreated,
		Errors:        linkErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  LinkSplitRequest
	}) (*struct {
		Body LinkCreatedResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "genealogy.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireUUIDs(map[string][]string{
			"source_lp_id": {input.Body.SourceLPID},
			"new_lp_id":    {input.Body.NewLPID},
		}); err != nil {
			return nil, handleError(err)
		}
		l, err := e.LinkSplit(ctx, engine.LinkSplitOptions{
			OrgID:      input.OrgID,
			SourceLPID: input.Body.SourceLPID,
			NewLPID:    input.Body.NewLPID,
			Quantity:   input.Body.Quantity,
			ActorID:    principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkCreatedResponse `json:"body"`
		}{Body: LinkCreatedResponse{ID: l.ID, Created: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "link-merge",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/genealogy/link-merge",
		Summary:       "Record source plates merged into a target plate",
		DefaultStatus: http.StatusCreated,
		Errors:        linkErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  LinkMergeRequest
	}) (*struct {
		Body LinksCreatedResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "genealogy.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireUUIDs(map[string][]string{
			"source_lp_ids": input.Body.SourceLPIDs,
			"target_lp_id":  {input.Body.TargetLPID},
		}); err != nil {
			return nil, handleError(err)
		}
		links, err := e.LinkMerge(ctx, engine.LinkMergeOptions{
			OrgID:       input.OrgID,
			SourceLPIDs: input.Body.SourceLPIDs,
			TargetLPID:  input.Body.TargetLPID,
			WOID:        input.Body.WOID,
			ActorID:     principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinksCreatedResponse `json:"body"`
		}{Body: LinksCreatedResponse{IDs: linkIDs(links), Created: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reverse-link",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/genealogy/{id}/reverse",
		Summary:     "Mark a genealogy link reversed",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct {
		Body LinkReversedResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, input.OrgID, "genealogy.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireUUIDs(map[string][]string{"id": {input.ID}}); err != nil {
			return nil, handleError(err)
		}
		l, err := e.ReverseLink(ctx, input.OrgID, input.ID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkReversedResponse `json:"body"`
		}{Body: LinkReversedResponse{ID: l.ID, Reversed: true, ReversedAt: *l.ReversedAt}}, nil
	})
}
