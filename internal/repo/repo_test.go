package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/migrate"
	"traceline/internal/trace"
)

const (
	testOrg = "org-1"
	testNow = "2024-01-01T00:00:00Z"
)

func newTestRepo(t *testing.T) (Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := Repo{DB: conn}
	ctx := context.Background()
	if err := r.EnsureOrg(ctx, nil, testOrg, "Plant", testNow); err != nil {
		t.Fatalf("ensure org: %v", err)
	}
	return r, ctx
}

func addPlate(t *testing.T, r Repo, ctx context.Context, number, qty, qa string) domain.LicensePlate {
	t.Helper()
	lp := domain.LicensePlate{
		ID:                 "id-" + number,
		OrgID:              testOrg,
		LPNumber:           number,
		ProductDescription: "product " + number,
		Quantity:           qty,
		UOM:                "kg",
		QAStatus:           qa,
		CreatedAt:          testNow,
		UpdatedAt:          testNow,
	}
	if err := r.InsertLicensePlate(ctx, nil, lp); err != nil {
		t.Fatalf("insert %s: %v", number, err)
	}
	return lp
}

func addLink(t *testing.T, r Repo, ctx context.Context, parent, child domain.LicensePlate, op string) domain.GenealogyLink {
	t.Helper()
	l := domain.GenealogyLink{
		ID:            fmt.Sprintf("link-%s-%s", parent.LPNumber, child.LPNumber),
		OrgID:         testOrg,
		ParentLPID:    parent.ID,
		ChildLPID:     child.ID,
		OperationType: op,
		Quantity:      parent.Quantity,
		OperationDate: testNow,
		CreatedAt:     testNow,
		CreatedBy:     "tester",
	}
	if err := r.InsertLink(ctx, nil, l); err != nil {
		t.Fatalf("insert link %s: %v", l.ID, err)
	}
	return l
}

func numbers(rows []trace.Row) string {
	var out []string
	for _, row := range rows {
		out = append(out, fmt.Sprintf("%s@%d", row.NodeNumber, row.Depth))
	}
	return strings.Join(out, ",")
}

// seedChain builds A -> B -> {C, D}, D -> E.
func seedChain(t *testing.T, r Repo, ctx context.Context) map[string]domain.LicensePlate {
	t.Helper()
	lps := map[string]domain.LicensePlate{}
	for _, n := range []string{"A", "B", "C", "D", "E"} {
		lps[n] = addPlate(t, r, ctx, n, "10.5", "Passed")
	}
	addLink(t, r, ctx, lps["A"], lps["B"], domain.OpConsume)
	addLink(t, r, ctx, lps["B"], lps["C"], domain.OpOutput)
	addLink(t, r, ctx, lps["B"], lps["D"], domain.OpSplit)
	addLink(t, r, ctx, lps["D"], lps["E"], domain.OpOutput)
	return lps
}

func TestTraceRowsForward(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedChain(t, r, ctx)

	rows, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "A", Direction: Forward, MaxDepth: 10})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if got := numbers(rows); got != "A@0,B@1,C@2,D@2,E@3" {
		t.Fatalf("forward rows = %s", got)
	}
	if rows[0].ParentNode != "" {
		t.Fatalf("root parent = %q", rows[0].ParentNode)
	}
	if rows[1].ParentNode != "id-A" || rows[4].ParentNode != "id-D" {
		t.Fatalf("unexpected parents: %+v", rows)
	}
	if rows[0].Quantity != 10.5 || rows[0].QAStatus != trace.QAPassed || rows[0].NodeType != NodeTypeLicensePlate {
		t.Fatalf("unexpected root row: %+v", rows[0])
	}
	if got := strings.Join(rows[4].Path, ">"); got != "A>B>D>E" {
		t.Fatalf("path = %s", got)
	}
}

func TestTraceRowsBackward(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedChain(t, r, ctx)

	rows, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "E", Direction: Backward, MaxDepth: 10})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if got := numbers(rows); got != "E@0,D@1,B@2,A@3" {
		t.Fatalf("backward rows = %s", got)
	}
}

func TestTraceRowsDepthLimit(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedChain(t, r, ctx)

	rows, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "A", Direction: Forward, MaxDepth: 1})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if got := numbers(rows); got != "A@0,B@1" {
		t.Fatalf("limited rows = %s", got)
	}
	if _, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "A", Direction: Forward, MaxDepth: -1}); err == nil {
		t.Fatalf("expected negative depth error")
	}
}

func TestTraceRowsReversedLinks(t *testing.T) {
	r, ctx := newTestRepo(t)
	lps := seedChain(t, r, ctx)
	l := addLink(t, r, ctx, lps["A"], lps["C"], domain.OpMerge)
	if err := r.ReverseLink(ctx, nil, testOrg, l.ID, testNow, "tester"); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	rows, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "A", Direction: Forward, MaxDepth: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := numbers(rows); got != "A@0,B@1,C@2,D@2,E@3" {
		t.Fatalf("reversed link leaked: %s", got)
	}
	rows, err = r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "A", Direction: Forward, MaxDepth: 10, IncludeReversed: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := numbers(rows); got != "A@0,B@1,C@1,C@2,D@2,E@3" {
		t.Fatalf("with reversed = %s", got)
	}
	if err := r.ReverseLink(ctx, nil, testOrg, "missing", testNow, "tester"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTraceRowsCutsCycles(t *testing.T) {
	r, ctx := newTestRepo(t)
	lps := seedChain(t, r, ctx)
	addLink(t, r, ctx, lps["E"], lps["A"], domain.OpConsume)

	rows, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "A", Direction: Forward, MaxDepth: 50})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if got := numbers(rows); got != "A@0,B@1,C@2,D@2,E@3" {
		t.Fatalf("cyclic rows = %s", got)
	}
}

func TestTraceRowsUnknownPlate(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedChain(t, r, ctx)
	rows, err := r.TraceRows(ctx, TraceQuery{OrgID: testOrg, LPNumber: "nope", Direction: Forward, MaxDepth: 5})
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows = %v, err = %v", rows, err)
	}
	rows, err = r.TraceRows(ctx, TraceQuery{OrgID: "other", LPNumber: "A", Direction: Forward, MaxDepth: 5})
	if err != nil || len(rows) != 0 {
		t.Fatalf("cross-org rows = %v, err = %v", rows, err)
	}
}

func TestInsertLicensePlateDuplicate(t *testing.T) {
	r, ctx := newTestRepo(t)
	addPlate(t, r, ctx, "A", "1", "Pending")
	lp := domain.LicensePlate{ID: "other", OrgID: testOrg, LPNumber: "A", Quantity: "1", QAStatus: "Pending", CreatedAt: testNow, UpdatedAt: testNow}
	if err := r.InsertLicensePlate(ctx, nil, lp); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := r.GetLicensePlateByNumber(ctx, testOrg, "B"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListLicensePlatesPaging(t *testing.T) {
	r, ctx := newTestRepo(t)
	for _, n := range []string{"LP-3", "LP-1", "LP-2"} {
		addPlate(t, r, ctx, n, "1", "Pending")
	}
	page, err := r.ListLicensePlates(ctx, testOrg, LicensePlateFilter{Limit: 2})
	if err != nil || len(page) != 2 || page[0].LPNumber != "LP-1" {
		t.Fatalf("first page = %+v, %v", page, err)
	}
	page, err = r.ListLicensePlates(ctx, testOrg, LicensePlateFilter{Limit: 2, Cursor: page[1].LPNumber})
	if err != nil || len(page) != 1 || page[0].LPNumber != "LP-3" {
		t.Fatalf("second page = %+v, %v", page, err)
	}
}

func TestEventsAfterScopesByOrg(t *testing.T) {
	r, ctx := newTestRepo(t)
	for i, org := range []string{testOrg, "other", testOrg} {
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO events(ts,type,org_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
			testNow, "license_plate.created", org, "license_plate", fmt.Sprintf("lp-%d", i), "tester", `{}`); err != nil {
			t.Fatal(err)
		}
	}
	evs, err := r.EventsAfter(ctx, 10, 0, testOrg)
	if err != nil || len(evs) != 2 || evs[0].ID >= evs[1].ID {
		t.Fatalf("events = %+v, %v", evs, err)
	}
	latest, err := r.LatestEventID(ctx, testOrg)
	if err != nil || latest != evs[1].ID {
		t.Fatalf("latest = %d, %v", latest, err)
	}
	evs, err = r.EventsAfter(ctx, 10, latest, testOrg)
	if err != nil || len(evs) != 0 {
		t.Fatalf("expected no events after cursor, got %+v", evs)
	}
}
