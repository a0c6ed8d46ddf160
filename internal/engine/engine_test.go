package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/migrate"
	"traceline/internal/repo"
	"traceline/internal/trace"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitOrg(ctx, cfg, "tester"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) plate(t *testing.T, number, qty string) domain.LicensePlate {
	t.Helper()
	lp, err := env.Engine.CreateLicensePlate(env.Ctx, engine.LicensePlateCreate{
		OrgID:              "org-1",
		LPNumber:           number,
		ProductDescription: "Flour",
		Quantity:           qty,
		UOM:                "kg",
		ActorID:            "tester",
	})
	if err != nil {
		t.Fatalf("create %s: %v", number, err)
	}
	return lp
}

func (env testEnv) consume(t *testing.T, parent, child domain.LicensePlate, qty string) domain.GenealogyLink {
	t.Helper()
	l, err := env.Engine.LinkConsumption(env.Ctx, engine.LinkConsumptionOptions{
		OrgID: "org-1", ParentLPID: parent.ID, ChildLPID: child.ID, Quantity: qty, WOID: "WO-1", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("link %s -> %s: %v", parent.LPNumber, child.LPNumber, err)
	}
	return l
}

func TestCreateLicensePlate(t *testing.T) {
	env := newTestEnv(t)
	lp := env.plate(t, "LP-1", "12.500")
	if lp.QAStatus != "Pending" || lp.Quantity != "12.5" {
		t.Fatalf("unexpected plate: %+v", lp)
	}
	_, err := env.Engine.CreateLicensePlate(env.Ctx, engine.LicensePlateCreate{OrgID: "org-1", LPNumber: "LP-1", Quantity: "1", ActorID: "tester"})
	if !engine.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	cases := []struct {
		name string
		opts engine.LicensePlateCreate
		want string
	}{
		{"missing number", engine.LicensePlateCreate{Quantity: "1"}, "lp_number required"},
		{"pipe in number", engine.LicensePlateCreate{LPNumber: "A|B", Quantity: "1"}, "must not contain"},
		{"bad quantity", engine.LicensePlateCreate{LPNumber: "LP-2", Quantity: "ten"}, "invalid quantity"},
		{"negative quantity", engine.LicensePlateCreate{LPNumber: "LP-2", Quantity: "-1"}, "negative"},
		{"bad qa", engine.LicensePlateCreate{LPNumber: "LP-2", Quantity: "1", QAStatus: "Great"}, "invalid qa_status"},
	}
	for _, tc := range cases {
		tc.opts.OrgID = "org-1"
		tc.opts.ActorID = "tester"
		_, err := env.Engine.CreateLicensePlate(env.Ctx, tc.opts)
		var ve engine.ValidationError
		if !errors.As(err, &ve) || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected validation error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLinkConsumptionValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "10")
	b := env.plate(t, "B", "5")
	env.consume(t, a, b, "2.5")

	cases := []struct {
		name string
		opts engine.LinkConsumptionOptions
		want string
	}{
		{"self", engine.LinkConsumptionOptions{ParentLPID: a.ID, ChildLPID: a.ID, Quantity: "1"}, "self-referencing"},
		{"missing parent", engine.LinkConsumptionOptions{ParentLPID: "nope", ChildLPID: b.ID, Quantity: "1"}, "parent license plate nope: not found"},
		{"missing child", engine.LinkConsumptionOptions{ParentLPID: a.ID, ChildLPID: "nope", Quantity: "1"}, "child license plate nope: not found"},
		{"zero quantity", engine.LinkConsumptionOptions{ParentLPID: b.ID, ChildLPID: a.ID, Quantity: "0"}, "positive"},
		{"duplicate", engine.LinkConsumptionOptions{ParentLPID: a.ID, ChildLPID: b.ID, Quantity: "1"}, "already exists"},
	}
	for _, tc := range cases {
		tc.opts.OrgID = "org-1"
		tc.opts.ActorID = "tester"
		_, err := env.Engine.LinkConsumption(env.Ctx, tc.opts)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLinkAcrossOrganizations(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "10")
	other := config.Default("org-2")
	if _, err := env.Engine.InitOrg(env.Ctx, other, "tester"); err != nil {
		t.Fatal(err)
	}
	foreign, err := env.Engine.CreateLicensePlate(env.Ctx, engine.LicensePlateCreate{OrgID: "org-2", LPNumber: "X", Quantity: "1", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.LinkConsumption(env.Ctx, engine.LinkConsumptionOptions{OrgID: "org-1", ParentLPID: a.ID, ChildLPID: foreign.ID, Quantity: "1", ActorID: "tester"})
	if err == nil || !strings.Contains(err.Error(), "different organizations") {
		t.Fatalf("expected org mismatch, got %v", err)
	}
}

func TestLinkOutputMergeSplit(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "10")
	b := env.plate(t, "B", "4")
	out := env.plate(t, "OUT", "14")

	if _, err := env.Engine.LinkOutput(env.Ctx, engine.LinkOutputOptions{OrgID: "org-1", OutputLPID: out.ID, ActorID: "tester"}); err == nil || !strings.Contains(err.Error(), "at least one") {
		t.Fatalf("expected at least one error, got %v", err)
	}
	links, err := env.Engine.LinkOutput(env.Ctx, engine.LinkOutputOptions{OrgID: "org-1", ConsumedLPIDs: []string{a.ID, b.ID}, OutputLPID: out.ID, WOID: "WO-7", ActorID: "tester"})
	if err != nil {
		t.Fatalf("link output: %v", err)
	}
	if len(links) != 2 || links[0].Quantity != "10" || links[1].Quantity != "4" || links[0].OperationType != domain.OpOutput {
		t.Fatalf("unexpected output links: %+v", links)
	}

	target := env.plate(t, "T", "0")
	if _, err := env.Engine.LinkMerge(env.Ctx, engine.LinkMergeOptions{OrgID: "org-1", SourceLPIDs: []string{a.ID, target.ID}, TargetLPID: target.ID, ActorID: "tester"}); err == nil || !strings.Contains(err.Error(), "target") {
		t.Fatalf("expected target/source error, got %v", err)
	}
	merged, err := env.Engine.LinkMerge(env.Ctx, engine.LinkMergeOptions{OrgID: "org-1", SourceLPIDs: []string{a.ID, b.ID}, TargetLPID: target.ID, ActorID: "tester"})
	if err != nil || len(merged) != 2 || merged[1].Quantity != "4" {
		t.Fatalf("merge = %+v, %v", merged, err)
	}

	part := env.plate(t, "A-1", "3")
	if _, err := env.Engine.LinkSplit(env.Ctx, engine.LinkSplitOptions{OrgID: "org-1", SourceLPID: a.ID, NewLPID: part.ID, Quantity: "-3", ActorID: "tester"}); err == nil {
		t.Fatalf("expected split quantity error")
	}
	split, err := env.Engine.LinkSplit(env.Ctx, engine.LinkSplitOptions{OrgID: "org-1", SourceLPID: a.ID, NewLPID: part.ID, Quantity: "3", ActorID: "tester"})
	if err != nil || split.OperationType != domain.OpSplit {
		t.Fatalf("split = %+v, %v", split, err)
	}
}

func TestFailedBatchLeavesNoLinks(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "10")
	out := env.plate(t, "OUT", "10")
	_, err := env.Engine.LinkOutput(env.Ctx, engine.LinkOutputOptions{OrgID: "org-1", ConsumedLPIDs: []string{a.ID, "missing"}, OutputLPID: out.ID, ActorID: "tester"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	links, err := env.Engine.Repo.ListLinks(env.Ctx, "org-1", repo.LinkFilter{})
	if err != nil || len(links) != 0 {
		t.Fatalf("links after failed batch = %+v, %v", links, err)
	}
}

func TestTraceForwardAndBackward(t *testing.T) {
	env := newTestEnv(t)
	flour := env.plate(t, "FLOUR", "100")
	dough := env.plate(t, "DOUGH", "80")
	bread := env.plate(t, "BREAD", "60")
	env.consume(t, flour, dough, "100")
	env.consume(t, dough, bread, "80")

	res, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "FLOUR", Direction: "forward"})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if !res.Found || res.TotalCount != 3 || res.HasMoreLevels {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Tree.Root().NodeNumber != "FLOUR" || res.Tree.Depth != 2 {
		t.Fatalf("unexpected tree root/depth: %s/%d", res.Tree.Root().NodeNumber, res.Tree.Depth)
	}
	if got := strings.Join(res.Tree.Path, ","); got != "FLOUR,DOUGH,BREAD" {
		t.Fatalf("path = %s", got)
	}
	if res.Tree.Summary.TotalQuantity != 240 || res.Tree.Summary.QAStatus != trace.QAPending {
		t.Fatalf("summary = %+v", res.Tree.Summary)
	}

	res, err = env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "BREAD", Direction: "Backward", MaxDepth: 1})
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if res.TotalCount != 2 || !res.HasMoreLevels || res.Tree.Root().Children[0].NodeNumber != "DOUGH" {
		t.Fatalf("unexpected backward result: %+v", res)
	}
}

func TestTraceNotFoundAndValidation(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "GHOST", Direction: "forward"})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if res.Found || res.Tree != nil || res.Message != "No trace data found for LP GHOST" {
		t.Fatalf("unexpected not-found result: %+v", res)
	}
	if _, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "A", Direction: "sideways"}); err == nil {
		t.Fatalf("expected direction error")
	}
	if _, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "A", Direction: "forward", MaxDepth: config.HardMaxDepth + 1}); err == nil {
		t.Fatalf("expected depth error")
	}
}

func TestReverseLinkHidesEdge(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "1")
	b := env.plate(t, "B", "1")
	l := env.consume(t, a, b, "1")

	rev, err := env.Engine.ReverseLink(env.Ctx, "org-1", l.ID, "tester")
	if err != nil || !rev.IsReversed || rev.ReversedAt == nil || *rev.ReversedBy != "tester" {
		t.Fatalf("reverse = %+v, %v", rev, err)
	}
	if _, err := env.Engine.ReverseLink(env.Ctx, "org-1", l.ID, "tester"); !engine.IsConflict(err) {
		t.Fatalf("expected conflict on second reverse, got %v", err)
	}
	if _, err := env.Engine.ReverseLink(env.Ctx, "org-1", "missing", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	res, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "A", Direction: "forward"})
	if err != nil || res.TotalCount != 1 {
		t.Fatalf("reversed edge still traced: %+v, %v", res, err)
	}
	include := true
	res, err = env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "A", Direction: "forward", IncludeReversed: &include})
	if err != nil || res.TotalCount != 2 {
		t.Fatalf("include reversed: %+v, %v", res, err)
	}
	// a reversed link no longer blocks relinking
	env.consume(t, a, b, "1")
}

func TestInspectionUpdatesTraceRollup(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "1")
	b := env.plate(t, "B", "1")
	env.consume(t, a, b, "1")

	if _, err := env.Engine.RecordInspection(env.Ctx, engine.InspectionCreate{OrgID: "org-1", LPNumber: "A", Result: "Excellent", ActorID: "qa"}); err == nil {
		t.Fatalf("expected invalid result")
	}
	for _, n := range []string{"A", "B"} {
		if _, err := env.Engine.RecordInspection(env.Ctx, engine.InspectionCreate{OrgID: "org-1", LPNumber: n, Result: "Passed", ActorID: "qa"}); err != nil {
			t.Fatalf("inspect %s: %v", n, err)
		}
	}
	res, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "A", Direction: "forward"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Tree.Summary.QAStatus != trace.QAPassed || res.Tree.Summary.TraceCompleteness != 100 {
		t.Fatalf("summary = %+v", res.Tree.Summary)
	}
	if _, err := env.Engine.RecordInspection(env.Ctx, engine.InspectionCreate{OrgID: "org-1", LPNumber: "B", Result: "Quarantine", ActorID: "qa"}); err != nil {
		t.Fatal(err)
	}
	res, _ = env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "A", Direction: "forward"})
	if res.Tree.Summary.QAStatus != trace.QAQuarantine || res.Tree.Summary.TraceCompleteness != 50 {
		t.Fatalf("summary after quarantine = %+v", res.Tree.Summary)
	}
	ins, err := env.Engine.ListInspections(env.Ctx, "org-1", "B")
	if err != nil || len(ins) != 2 {
		t.Fatalf("inspections = %+v, %v", ins, err)
	}
}

func TestGenealogyAndWorkOrder(t *testing.T) {
	env := newTestEnv(t)
	a := env.plate(t, "A", "10")
	b := env.plate(t, "B", "10")
	c := env.plate(t, "C", "10")
	env.consume(t, a, b, "10")
	env.consume(t, b, c, "10")

	g, err := env.Engine.Genealogy(env.Ctx, "org-1", "B", 0)
	if err != nil {
		t.Fatalf("genealogy: %v", err)
	}
	if g.LicensePlate.ID != b.ID || g.Backward.TotalCount != 2 || g.Forward.TotalCount != 2 {
		t.Fatalf("unexpected genealogy: %+v", g)
	}
	if g.Backward.Tree.Root().Children[0].NodeNumber != "A" || g.Forward.Tree.Root().Children[0].NodeNumber != "C" {
		t.Fatalf("directions swapped")
	}
	if _, err := env.Engine.Genealogy(env.Ctx, "org-1", "NOPE", 0); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	wo, err := env.Engine.WorkOrderGenealogy(env.Ctx, "org-1", "WO-1")
	if err != nil || wo.Total != 2 || len(wo.Links[domain.OpConsume]) != 2 {
		t.Fatalf("work order = %+v, %v", wo, err)
	}
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "svc", "ci")
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	if err != nil || got.ID != key.ID || got.ActorID != "svc" {
		t.Fatalf("lookup = %+v, %v", got, err)
	}
}

func TestRevokeLastOwnerRefused(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.RevokeRole(env.Ctx, "org-1", "tester", "owner"); !engine.IsConflict(err) {
		t.Fatalf("expected conflict revoking last owner, got %v", err)
	}
	if err := env.Engine.AssignRole(env.Ctx, "org-1", "second", "owner"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := env.Engine.RevokeRole(env.Ctx, "org-1", "tester", "owner"); err != nil {
		t.Fatalf("revoke with another owner: %v", err)
	}
	who, err := env.Engine.WhoAmI(env.Ctx, "org-1", "tester")
	if err != nil || len(who.Roles) != 0 {
		t.Fatalf("roles after revoke = %v, %v", who.Roles, err)
	}
	if err := env.Engine.AssignRole(env.Ctx, "org-1", "x", "wizard"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestTraceSplitThenMergeListsEachPlateOnce(t *testing.T) {
	env := newTestEnv(t)
	x := env.plate(t, "X", "20")
	a := env.plate(t, "A", "5")
	b := env.plate(t, "B", "5")
	c := env.plate(t, "C", "5")
	d := env.plate(t, "D", "5")
	for _, part := range []domain.LicensePlate{a, b} {
		if _, err := env.Engine.LinkSplit(env.Ctx, engine.LinkSplitOptions{OrgID: "org-1", SourceLPID: x.ID, NewLPID: part.ID, Quantity: "5", ActorID: "tester"}); err != nil {
			t.Fatalf("split %s: %v", part.LPNumber, err)
		}
	}
	if _, err := env.Engine.LinkMerge(env.Ctx, engine.LinkMergeOptions{OrgID: "org-1", SourceLPIDs: []string{a.ID, b.ID}, TargetLPID: c.ID, ActorID: "tester"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	env.consume(t, c, d, "5")

	res, err := env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "X", Direction: "forward"})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if res.TotalCount != 5 || len(res.Tree.Anomalies) != 0 {
		t.Fatalf("expected 5 distinct rows and no anomalies, got %d rows, anomalies %+v", res.TotalCount, res.Tree.Anomalies)
	}
	if res.Tree.Summary.TotalNodes != 5 || res.Tree.Summary.TotalQuantity != 40 {
		t.Fatalf("summary = %+v", res.Tree.Summary)
	}
	seen := map[string]int{}
	res.Tree.Walk(func(n *trace.Node, _ int) {
		seen[n.NodeNumber]++
		if n.NodeNumber == "C" && (len(n.Children) != 1 || n.Children[0].NodeNumber != "D" || n.Depth != 2) {
			t.Fatalf("unexpected merged node %+v", n)
		}
	})
	for _, number := range []string{"X", "A", "B", "C", "D"} {
		if seen[number] != 1 {
			t.Fatalf("%s appears %d times", number, seen[number])
		}
	}

	res, err = env.Engine.Trace(env.Ctx, engine.TraceRequest{OrgID: "org-1", LPNumber: "D", Direction: "backward"})
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if res.TotalCount != 5 || len(res.Tree.Anomalies) != 0 {
		t.Fatalf("backward: %d rows, anomalies %+v", res.TotalCount, res.Tree.Anomalies)
	}
}
