package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"traceline/internal/domain"
	"traceline/internal/events"
	"traceline/internal/repo"
)

// LinkConsumptionOptions records a parent plate consumed into a child.
type LinkConsumptionOptions struct {
	OrgID       string
	ParentLPID  string
	ChildLPID   string
	Quantity    string
	WOID        string
	OperationID string
	ActorID     string
}

// LinkOutputOptions records the plates consumed to produce one output plate.
type LinkOutputOptions struct {
	OrgID         string
	ConsumedLPIDs []string
	OutputLPID    string
	WOID          string
	OperationID   string
	ActorID       string
}

// LinkSplitOptions records a new plate split off a source plate.
type LinkSplitOptions struct {
	OrgID      string
	SourceLPID string
	NewLPID    string
	Quantity   string
	ActorID    string
}

// LinkMergeOptions records several source plates merged into a target.
type LinkMergeOptions struct {
	OrgID       string
	SourceLPIDs []string
	TargetLPID  string
	WOID        string
	ActorID     string
}

// linkDraft is one edge waiting for validation. When explicitQty is false the
// parent plate's own quantity is carried.
type linkDraft struct {
	parentID    string
	childID     string
	op          string
	qty         string
	explicitQty bool
}

func (e Engine) LinkConsumption(ctx context.Context, opts LinkConsumptionOptions) (domain.GenealogyLink, error) {
	links, err := e.createLinks(ctx, opts.OrgID, opts.ActorID, strPtr(opts.WOID), strPtr(opts.OperationID), []linkDraft{
		{parentID: opts.ParentLPID, childID: opts.ChildLPID, op: domain.OpConsume, qty: opts.Quantity, explicitQty: true},
	})
	if err != nil {
		return domain.GenealogyLink{}, err
	}
	return links[0], nil
}

// LinkOutput creates one output link per consumed plate, each carrying the
// consumed plate's quantity.
func (e Engine) LinkOutput(ctx context.Context, opts LinkOutputOptions) ([]domain.GenealogyLink, error) {
	if len(opts.ConsumedLPIDs) == 0 {
		return nil, invalid("at least one consumed license plate is required")
	}
	drafts := make([]linkDraft, 0, len(opts.ConsumedLPIDs))
	for _, id := range opts.ConsumedLPIDs {
		drafts = append(drafts, linkDraft{parentID: id, childID: opts.OutputLPID, op: domain.OpOutput})
	}
	return e.createLinks(ctx, opts.OrgID, opts.ActorID, strPtr(opts.WOID), strPtr(opts.OperationID), drafts)
}

func (e Engine) LinkSplit(ctx context.Context, opts LinkSplitOptions) (domain.GenealogyLink, error) {
	links, err := e.createLinks(ctx, opts.OrgID, opts.ActorID, nil, nil, []linkDraft{
		{parentID: opts.SourceLPID, childID: opts.NewLPID, op: domain.OpSplit, qty: opts.Quantity, explicitQty: true},
	})
	if err != nil {
		return domain.GenealogyLink{}, err
	}
	return links[0], nil
}

// LinkMerge links every source into the target with the source's quantity.
func (e Engine) LinkMerge(ctx context.Context, opts LinkMergeOptions) ([]domain.GenealogyLink, error) {
	if len(opts.SourceLPIDs) == 0 {
		return nil, invalid("at least one source license plate is required")
	}
	drafts := make([]linkDraft, 0, len(opts.SourceLPIDs))
	for _, id := range opts.SourceLPIDs {
		if id == opts.TargetLPID {
			return nil, invalid("target license plate %s cannot also be a source", id)
		}
		drafts = append(drafts, linkDraft{parentID: id, childID: opts.TargetLPID, op: domain.OpMerge})
	}
	return e.createLinks(ctx, opts.OrgID, opts.ActorID, strPtr(opts.WOID), nil, drafts)
}

// createLinks validates and inserts drafts in one transaction. Any failing
// draft aborts the whole batch.
func (e Engine) createLinks(ctx context.Context, orgID, actorID string, woID, opID *string, drafts []linkDraft) ([]domain.GenealogyLink, error) {
	if orgID == "" {
		return nil, invalid("org_id required")
	}
	if actorID == "" {
		return nil, invalid("actor_id required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := e.stamp()
	out := make([]domain.GenealogyLink, 0, len(drafts))
	for _, d := range drafts {
		parent, child, err := e.checkLink(ctx, tx, orgID, d.parentID, d.childID)
		if err != nil {
			return nil, err
		}
		qty := parent.Quantity
		if d.explicitQty {
			if qty, err = positiveQuantity(d.qty); err != nil {
				return nil, err
			}
		}
		l := domain.GenealogyLink{
			ID:            uuid.NewString(),
			OrgID:         orgID,
			ParentLPID:    parent.ID,
			ChildLPID:     child.ID,
			OperationType: d.op,
			Quantity:      qty,
			OperationDate: now,
			WOID:          woID,
			OperationID:   opID,
			CreatedAt:     now,
			CreatedBy:     actorID,
		}
		if err := e.Repo.InsertLink(ctx, tx, l); err != nil {
			return nil, fmt.Errorf("insert link: %w", err)
		}
		if err := e.Events.Append(ctx, tx, events.LinkCreated, orgID, "genealogy_link", l.ID, actorID, events.EventPayload{
			"operation_type": l.OperationType,
			"parent_lp":      parent.LPNumber,
			"child_lp":       child.LPNumber,
			"quantity":       l.Quantity,
		}); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e Engine) checkLink(ctx context.Context, tx *sql.Tx, orgID, parentID, childID string) (domain.LicensePlate, domain.LicensePlate, error) {
	var none domain.LicensePlate
	if parentID == "" || childID == "" {
		return none, none, invalid("parent and child license plate ids are required")
	}
	if parentID == childID {
		return none, none, invalid("self-referencing link: parent and child are the same license plate")
	}
	parent, err := e.Repo.GetLicensePlateByID(ctx, tx, parentID)
	if err != nil {
		return none, none, fmt.Errorf("parent license plate %s: %w", parentID, err)
	}
	child, err := e.Repo.GetLicensePlateByID(ctx, tx, childID)
	if err != nil {
		return none, none, fmt.Errorf("child license plate %s: %w", childID, err)
	}
	if parent.OrgID != child.OrgID {
		return none, none, invalid("license plates belong to different organizations")
	}
	if parent.OrgID != orgID {
		return none, none, fmt.Errorf("parent license plate %s: %w", parentID, repo.ErrNotFound)
	}
	exists, err := e.Repo.ActiveLinkExists(ctx, tx, orgID, parent.ID, child.ID)
	if err != nil {
		return none, none, err
	}
	if exists {
		return none, none, ConflictError{Msg: fmt.Sprintf("link from %s to %s already exists", parent.LPNumber, child.LPNumber)}
	}
	return parent, child, nil
}

// ReverseLink marks a link reversed. The link stays in the store and is
// skipped by traces unless reversed links are requested.
func (e Engine) ReverseLink(ctx context.Context, orgID, id, actorID string) (domain.GenealogyLink, error) {
	if actorID == "" {
		return domain.GenealogyLink{}, invalid("actor_id required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GenealogyLink{}, err
	}
	defer tx.Rollback()
	l, err := e.Repo.GetLink(ctx, tx, orgID, id)
	if err != nil {
		return domain.GenealogyLink{}, fmt.Errorf("link %s: %w", id, err)
	}
	if l.IsReversed {
		return domain.GenealogyLink{}, ConflictError{Msg: fmt.Sprintf("link %s already reversed", id)}
	}
	now := e.stamp()
	if err := e.Repo.ReverseLink(ctx, tx, orgID, id, now, actorID); err != nil {
		return domain.GenealogyLink{}, err
	}
	if err := e.Events.Append(ctx, tx, events.LinkReversed, orgID, "genealogy_link", id, actorID, events.EventPayload{
		"operation_type": l.OperationType,
	}); err != nil {
		return domain.GenealogyLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GenealogyLink{}, err
	}
	l.IsReversed = true
	l.ReversedAt = &now
	l.ReversedBy = &actorID
	return l, nil
}

// WorkOrderGenealogy groups a work order's active links by operation type.
type WorkOrderGenealogy struct {
	WOID  string                            `json:"wo_id"`
	Links map[string][]domain.GenealogyLink `json:"links"`
	Total int                               `json:"total"`
}

func (e Engine) WorkOrderGenealogy(ctx context.Context, orgID, woID string) (WorkOrderGenealogy, error) {
	if woID == "" {
		return WorkOrderGenealogy{}, invalid("wo_id required")
	}
	links, err := e.Repo.ListLinks(ctx, orgID, repo.LinkFilter{WOID: woID})
	if err != nil {
		return WorkOrderGenealogy{}, err
	}
	res := WorkOrderGenealogy{WOID: woID, Links: map[string][]domain.GenealogyLink{}}
	for _, l := range links {
		res.Links[l.OperationType] = append(res.Links[l.OperationType], l)
	}
	res.Total = len(links)
	return res, nil
}

func positiveQuantity(s string) (string, error) {
	d, err := parseQuantity(s)
	if err != nil {
		return "", err
	}
	if !d.GreaterThan(decimal.Zero) {
		return "", invalid("invalid quantity %s: must be positive", s)
	}
	return d.String(), nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}
