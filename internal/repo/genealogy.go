package repo

import (
	"context"
	"database/sql"
	"errors"

	"traceline/internal/domain"
)

const linkColumns = `id,org_id,parent_lp_id,child_lp_id,operation_type,COALESCE(quantity,''),operation_date,wo_id,operation_id,is_reversed,reversed_at,reversed_by,created_at,created_by`

func scanLink(row scanner) (domain.GenealogyLink, error) {
	var l domain.GenealogyLink
	var woID, opID, reversedAt, reversedBy sql.NullString
	var reversed int
	err := row.Scan(&l.ID, &l.OrgID, &l.ParentLPID, &l.ChildLPID, &l.OperationType, &l.Quantity, &l.OperationDate,
		&woID, &opID, &reversed, &reversedAt, &reversedBy, &l.CreatedAt, &l.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.WOID = nullStringPtr(woID)
	l.OperationID = nullStringPtr(opID)
	l.IsReversed = reversed != 0
	l.ReversedAt = nullStringPtr(reversedAt)
	l.ReversedBy = nullStringPtr(reversedBy)
	return l, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (r Repo) InsertLink(ctx context.Context, tx *sql.Tx, l domain.GenealogyLink) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO genealogy_links(id,org_id,parent_lp_id,child_lp_id,operation_type,quantity,operation_date,wo_id,operation_id,is_reversed,created_at,created_by)
VALUES (?,?,?,?,?,?,?,?,?,0,?,?)`,
		l.ID, l.OrgID, l.ParentLPID, l.ChildLPID, l.OperationType, nullable(l.Quantity), l.OperationDate,
		nullableStringPtr(l.WOID), nullableStringPtr(l.OperationID), l.CreatedAt, l.CreatedBy)
	return err
}

// ActiveLinkExists reports whether a non-reversed link joins parent to child.
func (r Repo) ActiveLinkExists(ctx context.Context, tx *sql.Tx, orgID, parentID, childID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT 1 FROM genealogy_links WHERE org_id=? AND parent_lp_id=? AND child_lp_id=? AND is_reversed=0 LIMIT 1`,
		orgID, parentID, childID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) GetLink(ctx context.Context, tx *sql.Tx, orgID, id string) (domain.GenealogyLink, error) {
	return scanLink(r.q(tx).QueryRowContext(ctx, `SELECT `+linkColumns+` FROM genealogy_links WHERE org_id=? AND id=?`, orgID, id))
}

// ReverseLink flags a link as reversed. The row itself is kept.
func (r Repo) ReverseLink(ctx context.Context, tx *sql.Tx, orgID, id, at, by string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE genealogy_links SET is_reversed=1, reversed_at=?, reversed_by=? WHERE org_id=? AND id=?`, at, by, orgID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkFilter narrows ListLinks.
type LinkFilter struct {
	WOID            string
	LPID            string
	IncludeReversed bool
}

func (r Repo) ListLinks(ctx context.Context, orgID string, f LinkFilter) ([]domain.GenealogyLink, error) {
	query := `SELECT ` + linkColumns + ` FROM genealogy_links WHERE org_id=?`
	args := []any{orgID}
	if f.WOID != "" {
		query += ` AND wo_id=?`
		args = append(args, f.WOID)
	}
	if f.LPID != "" {
		query += ` AND (parent_lp_id=? OR child_lp_id=?)`
		args = append(args, f.LPID, f.LPID)
	}
	if !f.IncludeReversed {
		query += ` AND is_reversed=0`
	}
	query += ` ORDER BY operation_date ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GenealogyLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
