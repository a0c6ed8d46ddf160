package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"traceline/internal/config"
	"traceline/internal/domain"
	"traceline/internal/engine/auth"
	"traceline/internal/events"
	"traceline/internal/repo"
	"traceline/internal/trace"
)

// ValidationError reports bad caller input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a write that clashes with existing state.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// InitOrg creates the org, seeds roles and permissions from cfg and makes
// actorID an owner. It is safe to run repeatedly.
func (e Engine) InitOrg(ctx context.Context, cfg *config.Config, actorID string) (domain.Organization, error) {
	if cfg == nil {
		return domain.Organization{}, errors.New("config not loaded")
	}
	if actorID == "" {
		return domain.Organization{}, invalid("actor_id required")
	}
	orgID := cfg.Org.ID
	_, lookupErr := e.Repo.GetOrg(ctx, orgID)
	created := errors.Is(lookupErr, repo.ErrNotFound)
	if lookupErr != nil && !created {
		return domain.Organization{}, lookupErr
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	if err := e.Repo.EnsureOrg(ctx, tx, orgID, cfg.Org.Name, now); err != nil {
		return domain.Organization{}, fmt.Errorf("ensure org: %w", err)
	}
	for _, p := range config.Permissions {
		if err := e.Repo.InsertPermission(ctx, tx, p, ""); err != nil {
			return domain.Organization{}, fmt.Errorf("insert permission %s: %w", p, err)
		}
	}
	for roleID, role := range cfg.RBAC.Roles {
		if err := e.Repo.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return domain.Organization{}, fmt.Errorf("insert role %s: %w", roleID, err)
		}
		if err := e.Repo.ClearRolePermissions(ctx, tx, roleID); err != nil {
			return domain.Organization{}, err
		}
		for _, p := range role.Permissions {
			if err := e.Repo.AddRolePermission(ctx, tx, roleID, p); err != nil {
				return domain.Organization{}, fmt.Errorf("grant %s to %s: %w", p, roleID, err)
			}
		}
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.Organization{}, fmt.Errorf("ensure actor: %w", err)
	}
	if err := e.Repo.AssignRole(ctx, tx, orgID, actorID, "owner"); err != nil {
		return domain.Organization{}, fmt.Errorf("assign owner: %w", err)
	}
	if created {
		if err := e.Events.Append(ctx, tx, events.OrgInitialized, orgID, "organization", orgID, actorID, events.EventPayload{"name": cfg.Org.Name}); err != nil {
			return domain.Organization{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return e.Repo.GetOrg(ctx, orgID)
}

// AssignRole grants roleID to actorID within orgID.
func (e Engine) AssignRole(ctx context.Context, orgID, actorID, roleID string) error {
	if e.Config != nil {
		if _, ok := e.Config.RBAC.Roles[roleID]; !ok {
			return invalid("unknown role %s", roleID)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, e.stamp()); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, orgID, actorID, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeRole removes roleID from actorID within orgID. The last owner of
// an org cannot be revoked.
func (e Engine) RevokeRole(ctx context.Context, orgID, actorID, roleID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if roleID == "owner" {
		others, err := e.Repo.CountRoleHolders(ctx, tx, orgID, roleID, actorID)
		if err != nil {
			return err
		}
		if others == 0 {
			return ConflictError{Msg: fmt.Sprintf("cannot revoke the last owner of org %s", orgID)}
		}
	}
	if err := e.Repo.RevokeRole(ctx, tx, orgID, actorID, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey issues a new key for actorID. The plaintext key is returned
// once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", invalid("actor_id required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "tlk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, key.CreatedAt); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// LicensePlateCreate are parameters for creating a license plate.
type LicensePlateCreate struct {
	OrgID              string
	LPNumber           string
	ProductDescription string
	Quantity           string
	UOM                string
	QAStatus           string
	StageSuffix        string
	Location           string
	WOID               string
	ActorID            string
}

func (e Engine) CreateLicensePlate(ctx context.Context, opts LicensePlateCreate) (domain.LicensePlate, error) {
	number := strings.TrimSpace(opts.LPNumber)
	if opts.OrgID == "" {
		return domain.LicensePlate{}, invalid("org_id required")
	}
	if number == "" {
		return domain.LicensePlate{}, invalid("lp_number required")
	}
	if strings.Contains(number, "|") {
		return domain.LicensePlate{}, invalid("invalid lp_number %q: must not contain '|'", number)
	}
	if opts.ActorID == "" {
		return domain.LicensePlate{}, invalid("actor_id required")
	}
	qty, err := parseQuantity(opts.Quantity)
	if err != nil {
		return domain.LicensePlate{}, err
	}
	if qty.IsNegative() {
		return domain.LicensePlate{}, invalid("invalid quantity %s: must not be negative", opts.Quantity)
	}
	qa := trace.QAStatus(opts.QAStatus)
	if qa == "" {
		qa = trace.QAPending
	}
	if !qa.Known() {
		return domain.LicensePlate{}, invalid("invalid qa_status %q", opts.QAStatus)
	}
	if _, err := e.Repo.GetOrg(ctx, opts.OrgID); err != nil {
		return domain.LicensePlate{}, fmt.Errorf("org %s: %w", opts.OrgID, err)
	}
	now := e.stamp()
	lp := domain.LicensePlate{
		ID:                 uuid.NewString(),
		OrgID:              opts.OrgID,
		LPNumber:           number,
		ProductDescription: opts.ProductDescription,
		Quantity:           qty.String(),
		UOM:                opts.UOM,
		QAStatus:           string(qa),
		StageSuffix:        opts.StageSuffix,
		Location:           opts.Location,
		WOID:               opts.WOID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LicensePlate{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertLicensePlate(ctx, tx, lp); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.LicensePlate{}, ConflictError{Msg: fmt.Sprintf("license plate %s already exists", number)}
		}
		return domain.LicensePlate{}, err
	}
	if err := e.Events.Append(ctx, tx, events.LicensePlateCreated, lp.OrgID, "license_plate", lp.ID, opts.ActorID, events.EventPayload{
		"lp_number": lp.LPNumber,
		"quantity":  lp.Quantity,
		"qa_status": lp.QAStatus,
	}); err != nil {
		return domain.LicensePlate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LicensePlate{}, err
	}
	return lp, nil
}

func (e Engine) GetLicensePlate(ctx context.Context, orgID, id string) (domain.LicensePlate, error) {
	return e.Repo.GetLicensePlate(ctx, orgID, id)
}

func (e Engine) GetLicensePlateByNumber(ctx context.Context, orgID, number string) (domain.LicensePlate, error) {
	lp, err := e.Repo.GetLicensePlateByNumber(ctx, orgID, number)
	if err != nil {
		return lp, fmt.Errorf("license plate %s: %w", number, err)
	}
	return lp, nil
}

func (e Engine) ListLicensePlates(ctx context.Context, orgID string, f repo.LicensePlateFilter) ([]domain.LicensePlate, error) {
	if f.QAStatus != "" && !trace.QAStatus(f.QAStatus).Known() {
		return nil, invalid("invalid qa_status %q", f.QAStatus)
	}
	return e.Repo.ListLicensePlates(ctx, orgID, f)
}

// InspectionCreate are parameters for recording a QA inspection.
type InspectionCreate struct {
	OrgID    string
	LPNumber string
	Result   string
	Notes    string
	ActorID  string
}

// RecordInspection stores an inspection and moves the plate to its result.
func (e Engine) RecordInspection(ctx context.Context, opts InspectionCreate) (domain.Inspection, error) {
	result := trace.QAStatus(opts.Result)
	if !result.Known() {
		return domain.Inspection{}, invalid("invalid result %q: expected Passed, Failed, Quarantine or Pending", opts.Result)
	}
	if opts.ActorID == "" {
		return domain.Inspection{}, invalid("actor_id required")
	}
	lp, err := e.GetLicensePlateByNumber(ctx, opts.OrgID, opts.LPNumber)
	if err != nil {
		return domain.Inspection{}, err
	}
	in := domain.Inspection{
		ID:          uuid.NewString(),
		OrgID:       opts.OrgID,
		LPID:        lp.ID,
		Result:      string(result),
		Notes:       opts.Notes,
		InspectorID: opts.ActorID,
		CreatedAt:   e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInspection(ctx, tx, in); err != nil {
		return domain.Inspection{}, err
	}
	if err := e.Repo.UpdateQAStatus(ctx, tx, opts.OrgID, lp.ID, in.Result, in.CreatedAt); err != nil {
		return domain.Inspection{}, err
	}
	if err := e.Events.Append(ctx, tx, events.InspectionRecorded, opts.OrgID, "license_plate", lp.ID, opts.ActorID, events.EventPayload{
		"lp_number": lp.LPNumber,
		"from":      lp.QAStatus,
		"to":        in.Result,
	}); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, err
	}
	return in, nil
}

func (e Engine) ListInspections(ctx context.Context, orgID, lpNumber string) ([]domain.Inspection, error) {
	lp, err := e.GetLicensePlateByNumber(ctx, orgID, lpNumber)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListInspections(ctx, orgID, lp.ID)
}

func parseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, invalid("quantity required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, invalid("invalid quantity %q", s)
	}
	return d, nil
}

// WhoAmI lists the roles and permissions an actor holds in an org.
type WhoAmI struct {
	ActorID     string   `json:"actor_id"`
	OrgID       string   `json:"org_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (e Engine) WhoAmI(ctx context.Context, orgID, actorID string) (WhoAmI, error) {
	roles, err := e.Auth.ActorRoles(ctx, nil, orgID, actorID)
	if err != nil {
		return WhoAmI{}, err
	}
	perms, err := e.Auth.ActorPermissions(ctx, nil, orgID, actorID)
	if err != nil {
		return WhoAmI{}, err
	}
	return WhoAmI{ActorID: actorID, OrgID: orgID, Roles: roles, Permissions: perms}, nil
}
