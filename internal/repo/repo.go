package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) GetOrg(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM organizations WHERE id=?`, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, orgID, name, now string) error {
	if name == "" {
		name = orgID
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id, name, created_at) VALUES (?,?,?)`, orgID, name, now)
	return err
}

const lpColumns = `id,org_id,lp_number,product_description,quantity,uom,qa_status,COALESCE(stage_suffix,''),COALESCE(location,''),COALESCE(wo_id,''),created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLicensePlate(row scanner) (domain.LicensePlate, error) {
	var lp domain.LicensePlate
	err := row.Scan(&lp.ID, &lp.OrgID, &lp.LPNumber, &lp.ProductDescription, &lp.Quantity, &lp.UOM, &lp.QAStatus,
		&lp.StageSuffix, &lp.Location, &lp.WOID, &lp.CreatedAt, &lp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lp, ErrNotFound
	}
	return lp, err
}

func (r Repo) InsertLicensePlate(ctx context.Context, tx *sql.Tx, lp domain.LicensePlate) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO license_plates(id,org_id,lp_number,product_description,quantity,uom,qa_status,stage_suffix,location,wo_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		lp.ID, lp.OrgID, lp.LPNumber, lp.ProductDescription, lp.Quantity, lp.UOM, lp.QAStatus,
		nullable(lp.StageSuffix), nullable(lp.Location), nullable(lp.WOID), lp.CreatedAt, lp.UpdatedAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return fmt.Errorf("license plate %s already exists: %w", lp.LPNumber, ErrDuplicate)
	}
	return err
}

// ErrDuplicate marks unique-constraint violations.
var ErrDuplicate = errors.New("duplicate")

// GetLicensePlateByID looks up a plate in any org; callers compare OrgID.
func (r Repo) GetLicensePlateByID(ctx context.Context, tx *sql.Tx, id string) (domain.LicensePlate, error) {
	return scanLicensePlate(r.q(tx).QueryRowContext(ctx, `SELECT `+lpColumns+` FROM license_plates WHERE id=?`, id))
}

func (r Repo) GetLicensePlate(ctx context.Context, orgID, id string) (domain.LicensePlate, error) {
	return scanLicensePlate(r.DB.QueryRowContext(ctx, `SELECT `+lpColumns+` FROM license_plates WHERE org_id=? AND id=?`, orgID, id))
}

func (r Repo) GetLicensePlateByNumber(ctx context.Context, orgID, number string) (domain.LicensePlate, error) {
	return scanLicensePlate(r.DB.QueryRowContext(ctx, `SELECT `+lpColumns+` FROM license_plates WHERE org_id=? AND lp_number=?`, orgID, number))
}

// LicensePlateFilter narrows ListLicensePlates.
type LicensePlateFilter struct {
	QAStatus string
	WOID     string
	Limit    int
	// Cursor is the last lp_number of the previous page.
	Cursor string
}

func (r Repo) ListLicensePlates(ctx context.Context, orgID string, f LicensePlateFilter) ([]domain.LicensePlate, error) {
	clauses := []string{"org_id=?"}
	args := []any{orgID}
	if f.QAStatus != "" {
		clauses = append(clauses, "qa_status=?")
		args = append(args, f.QAStatus)
	}
	if f.WOID != "" {
		clauses = append(clauses, "wo_id=?")
		args = append(args, f.WOID)
	}
	if f.Cursor != "" {
		clauses = append(clauses, "lp_number>?")
		args = append(args, f.Cursor)
	}
	query := `SELECT ` + lpColumns + ` FROM license_plates WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY lp_number ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LicensePlate
	for rows.Next() {
		lp, err := scanLicensePlate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, lp)
	}
	return res, rows.Err()
}

func (r Repo) UpdateQAStatus(ctx context.Context, tx *sql.Tx, orgID, id, status, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE license_plates SET qa_status=?, updated_at=? WHERE org_id=? AND id=?`, status, now, orgID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
