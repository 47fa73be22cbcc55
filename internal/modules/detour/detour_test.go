package detour

import (
	"context"
	"errors"
	"testing"

	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/routing"
)

func newTestEvaluator(m maps.Mapper) *Evaluator {
	return NewEvaluator(m, routing.NewInsertionSolver(routing.DefaultOptions()), maps.TacticsDefault)
}

func mustCandidate(t *testing.T, pickup, delivery, price string) OrderCandidate {
	t.Helper()
	c, err := NewOrderCandidate(pickup, delivery, price)
	if err != nil {
		t.Fatalf("NewOrderCandidate: %v", err)
	}
	return c
}

func TestEvaluate_EmptyRoute(t *testing.T) {
	m := maps.NewStaticMapper().Place("loc", 0).Place("P", 5).Place("D", 10)
	res, err := newTestEvaluator(m).Evaluate(context.Background(), DriverState{Location: "loc"}, mustCandidate(t, "P", "D", "50"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Infeasible || res.ExtraSeconds != 600 || res.BaselineSeconds != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	want := []string{"loc", "P", "D"}
	for i := range want {
		if res.Route[i] != want[i] {
			t.Fatalf("route %v, want %v", res.Route, want)
		}
	}
	if m.MatrixCalls() != 1 {
		t.Errorf("expected one matrix call, got %d", m.MatrixCalls())
	}
}

func TestEvaluate_OnTheWayCostsNothing(t *testing.T) {
	m := maps.NewStaticMapper().
		Place("loc", 0).Place("P1", 2).Place("D1", 8).
		Place("P", 4).Place("D", 6)
	driver := DriverState{Location: "loc", Pickups: []string{"P1"}, Deliveries: []string{"D1"}}
	res, err := newTestEvaluator(m).Evaluate(context.Background(), driver, mustCandidate(t, "P", "D", "30"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.BaselineSeconds != 480 || res.ExtendedSeconds != 480 || res.ExtraSeconds != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEvaluate_RiderAboard(t *testing.T) {
	m := maps.NewStaticMapper().Place("loc", 0).Place("D1", 3).Place("P", 1).Place("D", 2)
	driver := DriverState{Location: "loc", Pickups: []string{""}, Deliveries: []string{"D1"}}
	res, err := newTestEvaluator(m).Evaluate(context.Background(), driver, mustCandidate(t, "P", "D", "30"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.BaselineSeconds != 180 || res.ExtraSeconds != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEvaluate_InfeasibleMerge(t *testing.T) {
	m := maps.NewStaticMapper().Place("loc", 0).Place("P", 1).Place("D", 2)
	m.SetDuration("P", "D", routing.MaxRouteSeconds+1)
	res, err := newTestEvaluator(m).Evaluate(context.Background(), DriverState{Location: "loc"}, mustCandidate(t, "P", "D", "30"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Infeasible {
		t.Fatalf("expected infeasible, got %+v", res)
	}
}

func TestEvaluate_InvalidDriverState(t *testing.T) {
	m := maps.NewStaticMapper()
	cases := []DriverState{
		{Location: "loc", Pickups: []string{"A"}},
		{Location: "", Pickups: nil, Deliveries: nil},
		{Location: "loc", Pickups: []string{"A"}, Deliveries: []string{""}},
	}
	for i, d := range cases {
		_, err := newTestEvaluator(m).Evaluate(context.Background(), d, mustCandidate(t, "P", "D", "30"))
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
	if m.GeocodeCalls() != 0 || m.MatrixCalls() != 0 {
		t.Error("invalid requests must not reach the mapper")
	}
}

func TestEvaluate_MappingErrorsPropagate(t *testing.T) {
	m := maps.NewStaticMapper().Place("loc", 0).Place("D", 2)
	m.MarkUnresolvable("nowhere")
	_, err := newTestEvaluator(m).Evaluate(context.Background(), DriverState{Location: "loc"}, mustCandidate(t, "nowhere", "D", "30"))
	if !errors.Is(err, maps.ErrUnresolvableAddress) {
		t.Fatalf("expected ErrUnresolvableAddress, got %v", err)
	}

	m.Place("P", 1)
	m.MatrixErr(maps.ErrServiceUnavailable)
	_, err = newTestEvaluator(m).Evaluate(context.Background(), DriverState{Location: "loc"}, mustCandidate(t, "P", "D", "30"))
	if !errors.Is(err, maps.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestScenario_NextDropAndReducedDetour(t *testing.T) {
	m := maps.NewStaticMapper().
		Place("loc", 0).Place("D1", 10).Place("P2", 2).Place("D2", 4).
		Place("P", 5).Place("D", 7)
	driver := DriverState{
		Location:   "loc",
		Pickups:    []string{"", "P2"},
		Deliveries: []string{"D1", "D2"},
	}
	sc, err := newTestEvaluator(m).Prepare(context.Background(), driver, mustCandidate(t, "P", "D", "30"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	h, ok := sc.NextDrop()
	if !ok {
		t.Fatal("expected a handoff")
	}
	if h.Address != "D2" || h.Seconds != 240 {
		t.Fatalf("unexpected handoff %+v", h)
	}
	if got := sc.SecondsToPickup(h.Node); got != 60 {
		t.Errorf("expected 60s to pickup, got %d", got)
	}
	res, err := sc.DetourFrom(context.Background(), h)
	if err != nil {
		t.Fatalf("DetourFrom: %v", err)
	}
	if res.BaselineSeconds != 360 || res.ExtraSeconds != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Route[0] != "D2" {
		t.Errorf("reduced route must start at the handoff, got %v", res.Route)
	}
}

func TestScenario_NoDeliveries(t *testing.T) {
	m := maps.NewStaticMapper().Place("loc", 0).Place("P", 5).Place("D", 7)
	sc, err := newTestEvaluator(m).Prepare(context.Background(), DriverState{Location: "loc"}, mustCandidate(t, "P", "D", "30"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if sc.HasDeliveries() {
		t.Error("expected no deliveries")
	}
	if _, ok := sc.NextDrop(); ok {
		t.Error("expected no handoff")
	}
	if got := sc.SecondsToPickup(0); got != 300 {
		t.Errorf("expected 300s, got %d", got)
	}
}

func TestPreview(t *testing.T) {
	m := maps.NewStaticMapper().Place("loc", 0).Place("P1", 3).Place("D1", 1)
	driver := DriverState{Location: "loc", Pickups: []string{"P1"}, Deliveries: []string{"D1"}}
	p, err := newTestEvaluator(m).Preview(context.Background(), driver, maps.TacticsAvoidHighway)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if p.TotalSeconds != 300 || len(p.Route) != 3 || p.Route[1] != "P1" || p.Route[2] != "D1" {
		t.Fatalf("unexpected preview %+v", p)
	}
}

func TestOrderCandidate(t *testing.T) {
	c := mustCandidate(t, " 东站 ", "西湖", "88")
	if got := c.Fingerprint(); got != "6d74cff37e088b0dd1ccbac4d648e5a8" {
		t.Errorf("unexpected fingerprint %s", got)
	}
	if c.Price.Amount != 8800 {
		t.Errorf("unexpected price %+v", c.Price)
	}
	other := mustCandidate(t, "东站", "西湖", "88.00")
	if other.Fingerprint() == c.Fingerprint() {
		t.Error("a different price string must give a different fingerprint")
	}
	for _, bad := range [][3]string{{"", "D", "1"}, {"P", "D", "abc"}, {"P", "", "1"}, {"P", "D", "-0.50"}, {"P", "D", "88.+5"}} {
		if _, err := NewOrderCandidate(bad[0], bad[1], bad[2]); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%v: expected ErrInvalidRequest, got %v", bad, err)
		}
	}
}

func TestMinutes(t *testing.T) {
	cases := map[int64]float64{0: 0, 90: 1.5, 1950: 32.5, 61: 1}
	for secs, want := range cases {
		if got := Minutes(secs); got != want {
			t.Errorf("Minutes(%d) = %v, want %v", secs, got, want)
		}
	}
}
