package repo

import (
	"context"
	"database/sql"

	"traceline/internal/domain"
)

func (r Repo) InsertInspection(ctx context.Context, tx *sql.Tx, in domain.Inspection) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO inspections(id, org_id, lp_id, result, notes, inspector_id, created_at) VALUES (?,?,?,?,?,?,?)`,
		in.ID, in.OrgID, in.LPID, in.Result, nullable(in.Notes), in.InspectorID, in.CreatedAt)
	return err
}

// ListInspections returns the inspections of one plate, newest first.
func (r Repo) ListInspections(ctx context.Context, orgID, lpID string) ([]domain.Inspection, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, org_id, lp_id, result, COALESCE(notes,''), inspector_id, created_at
FROM inspections WHERE org_id=? AND lp_id=? ORDER BY created_at DESC, id DESC`, orgID, lpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Inspection
	for rows.Next() {
		var in domain.Inspection
		if err := rows.Scan(&in.ID, &in.OrgID, &in.LPID, &in.Result, &in.Notes, &in.InspectorID, &in.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}
