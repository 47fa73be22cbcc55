package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	httptransport "smartdispatch/internal/http"
	"smartdispatch/internal/infra"
	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/modules/dispatch"
	"smartdispatch/internal/modules/notify"
	"smartdispatch/internal/modules/routing"
	"smartdispatch/internal/platform/metrics"
)

type stubVerifier struct {
	err error
}

func (s stubVerifier) VerifyIDToken(_ context.Context, token string) (*infra.FirebaseToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &infra.FirebaseToken{UID: token}, nil
}

type testServer struct {
	handler  http.Handler
	mapper   *maps.StaticMapper
	registry *dispatch.Registry
}

func newTestServer(t *testing.T, verifier infra.TokenVerifier) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := maps.NewStaticMapper().
		Place("loc", 0).Place("P", 5).Place("D", 10).
		Place("P1", 3).Place("D1", 1)

	ev := detour.NewEvaluator(m, routing.NewInsertionSolver(routing.DefaultOptions()), maps.TacticsDefault)
	reg := dispatch.NewRegistry(func(driverID string) *dispatch.Engine {
		return dispatch.NewEngine(dispatch.Options{
			DriverID:  driverID,
			Evaluator: ev,
			Notifier:  notify.NewLogNotifier(logger),
			Logger:    logger,
		})
	})
	t.Cleanup(reg.Close)

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Registry:        reg,
		Mapper:          m,
		DefaultDriverID: "driver-1",
		Metrics:         metrics.New("test"),
		Verifier:        verifier,
		Logger:          logger,
	})
	return &testServer{handler: srv.Routes(), mapper: m, registry: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func evaluateBody(pickups, deliveries []string, pickup, delivery, price string) map[string]any {
	if pickups == nil {
		pickups = []string{}
	}
	if deliveries == nil {
		deliveries = []string{}
	}
	return map[string]any{
		"current_state": map[string]any{"driver_loc": "loc", "pickups": pickups, "deliveries": deliveries},
		"new_order":     map[string]any{"pickup": pickup, "delivery": delivery, "price": price},
	}
}

func TestEvaluateNewOrder_MatchThenCooldownThenDecline(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodPost, "/evaluate_new_order", evaluateBody(nil, nil, "P", "D", "50"))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
	if body["status"] != "matched" || body["detour_minutes"] != 10.0 || body["profit"] != "50" {
		t.Fatalf("unexpected decision %v", body)
	}
	fp, _ := body["fingerprint"].(string)
	if fp == "" {
		t.Fatal("matched decision without fingerprint")
	}

	_, body = s.do(t, http.MethodPost, "/evaluate_new_order", evaluateBody(nil, nil, "P", "D", "50"))
	if body["status"] != "ignored" || body["reason_code"] != "cooldown" {
		t.Fatalf("expected a cooldown ignore, got %v", body)
	}

	code, body = s.do(t, http.MethodPost, "/order_response", map[string]any{
		"fingerprint": fp, "accepted": false, "continue_searching": false,
	})
	if code != http.StatusOK || body["mode"] != "pause" {
		t.Fatalf("expected the driver paused, got %d %v", code, body)
	}

	_, body = s.do(t, http.MethodPost, "/evaluate_new_order", evaluateBody(nil, nil, "P", "D", "50"))
	if body["status"] != "ignored" || body["reason_code"] != "abandoned" {
		t.Fatalf("expected an abandoned ignore, got %v", body)
	}
}

func TestEvaluateNewOrder_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name string
		body any
		want int
	}{
		{"unresolvable pickup", evaluateBody(nil, nil, "nowhere", "D", "50"), http.StatusUnprocessableEntity},
		{"pairing mismatch", evaluateBody([]string{"P1"}, nil, "P", "D", "50"), http.StatusBadRequest},
		{"bad price", evaluateBody(nil, nil, "P", "D", "cheap"), http.StatusBadRequest},
		{"not json", "nope", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/evaluate_new_order", tc.body)
			if code != tc.want {
				t.Errorf("expected %d, got %d %v", tc.want, code, body)
			}
		})
	}

	s.mapper.MatrixErr(maps.ErrServiceUnavailable)
	code, _ := s.do(t, http.MethodPost, "/evaluate_new_order", evaluateBody(nil, nil, "P", "D", "51"))
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the mapping service is down, got %d", code)
	}
}

func TestDriverMode(t *testing.T) {
	s := newTestServer(t, nil)

	_, body := s.do(t, http.MethodGet, "/driver_mode", nil)
	if body["mode"] != "mode2" || body["mode_name"] != "threshold" {
		t.Fatalf("unexpected default mode %v", body)
	}
	code, body := s.do(t, http.MethodPut, "/driver_mode", map[string]any{"mode": "mode3"})
	if code != http.StatusOK || body["mode_name"] != "locality" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if code, _ := s.do(t, http.MethodPut, "/driver_mode", map[string]any{"mode": "mode9"}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown mode, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/driver_mode", map[string]any{}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing mode, got %d", code)
	}

	_, body = s.do(t, http.MethodGet, "/driver_mode", nil, "X-Driver-ID", "driver-2")
	if body["mode_name"] != "threshold" {
		t.Errorf("another driver must keep its own mode, got %v", body)
	}
}

func TestDriverModeConfig(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodPut, "/driver_mode_config", map[string]any{"mode2_detour_max": 20})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
	if body["mode2_detour_max"] != 20.0 || body["mode2_high_profit_threshold"] != 100.0 {
		t.Fatalf("unexpected config %v", body)
	}
	if code, _ := s.do(t, http.MethodPut, "/driver_mode_config", map[string]any{"mode3_radius_minutes": -5}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative threshold, got %d", code)
	}
	_, body = s.do(t, http.MethodGet, "/driver_mode_config", nil)
	if body["mode3_radius_minutes"] != 20.0 {
		t.Errorf("rejected update must not apply, got %v", body)
	}
}

func TestPlannedTripsAndProbe(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodPost, "/planned_trip", map[string]any{
		"origin": "如东", "destination": "上海", "departure_time": "06:00",
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", code, body)
	}
	plans := body["plans"].([]any)
	first := plans[0].(map[string]any)
	if len(plans) != 1 || first["min_orders"] != 2.0 || first["time_window_minutes"] != 30.0 {
		t.Fatalf("unexpected plans %v", plans)
	}
	if code, _ := s.do(t, http.MethodPost, "/planned_trip", map[string]any{
		"origin": "A", "destination": "B", "departure_time": "25:00",
	}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad departure time, got %d", code)
	}

	code, body = s.do(t, http.MethodPut, "/planned_trip", map[string]any{"index": 0, "departure_time": "07:30"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
	if code, _ := s.do(t, http.MethodPut, "/planned_trip", map[string]any{"departure_time": "07:30"}); code != http.StatusBadRequest {
		t.Errorf("expected 400 without an index, got %d", code)
	}

	s.do(t, http.MethodPut, "/driver_mode", map[string]any{"mode": "mode1"})
	code, body = s.do(t, http.MethodPost, "/probe_publish_trip", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["origin"] != "如东" || body["destination"] != "上海" || body["depart_time"] != "07:30" || body["cancel_current_trip"] != false {
		t.Fatalf("unexpected suggestion %v", body)
	}

	if code, _ := s.do(t, http.MethodPost, "/planned_trip/complete?index=5", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown index, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/planned_trip/complete?index=x", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad index, got %d", code)
	}
	_, body = s.do(t, http.MethodPost, "/planned_trip/complete?index=0", nil)
	if done := body["plans"].([]any)[0].(map[string]any)["completed"]; done != true {
		t.Fatalf("expected the trip completed, got %v", body)
	}

	_, body = s.do(t, http.MethodPost, "/probe_publish_trip", nil)
	if _, ok := body["origin"]; ok {
		t.Errorf("completed trips must not be suggested, got %v", body)
	}
}

func TestProbe_ThresholdModeUsesCurrentState(t *testing.T) {
	s := newTestServer(t, nil)
	_, body := s.do(t, http.MethodPost, "/probe_publish_trip", map[string]any{
		"current_state": map[string]any{"driver_loc": "loc", "pickups": []string{"P1"}, "deliveries": []string{"D1"}},
	})
	if body["origin"] != "loc" || body["destination"] != "D1" {
		t.Fatalf("unexpected suggestion %v", body)
	}
}

func TestCurrentRoutePreview(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, http.MethodPost, "/current_route_preview", map[string]any{
		"current_state": map[string]any{"driver_loc": "loc", "pickups": []string{"P1"}, "deliveries": []string{"D1"}},
		"tactics":       3,
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
	if body["total_time_seconds"] != 300.0 || len(body["route_addresses"].([]any)) != 3 {
		t.Fatalf("unexpected preview %v", body)
	}
}

func TestReverseGeocode(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/reverse_geocode?lat=0&lng=5", nil)
	if code != http.StatusOK || body["address"] != "P" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	code, body = s.do(t, http.MethodPost, "/reverse_geocode", map[string]any{"lat": 0, "lng": 10})
	if code != http.StatusOK || body["address"] != "D" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if code, _ := s.do(t, http.MethodGet, "/reverse_geocode?lat=abc&lng=5", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/reverse_geocode?lat=95&lng=5", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for an out of range latitude, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/reverse_geocode?lat=1&lng=1", nil); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an unknown point, got %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	if code, _ := s.do(t, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Errorf("health: %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/metrics", nil); code != http.StatusOK {
		t.Errorf("metrics: %d", code)
	}
}

func TestAuthEnabled(t *testing.T) {
	s := newTestServer(t, stubVerifier{})

	if code, _ := s.do(t, http.MethodGet, "/driver_mode", nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Errorf("health must stay open, got %d", code)
	}

	s.do(t, http.MethodPut, "/driver_mode", map[string]any{"mode": "pause"}, "Authorization", "Bearer driver-9")
	if got := s.registry.Drivers(); len(got) != 1 || got[0] != "driver-9" {
		t.Fatalf("the caller's uid must select the engine, got %v", got)
	}
	// The uid wins over an explicit header.
	_, body := s.do(t, http.MethodGet, "/driver_mode", nil, "Authorization", "Bearer driver-9", "X-Driver-ID", "other")
	if body["mode_name"] != "paused" {
		t.Errorf("unexpected mode %v", body)
	}

	denied := newTestServer(t, stubVerifier{err: errors.New("expired")})
	if code, _ := denied.do(t, http.MethodGet, "/driver_mode", nil, "Authorization", "Bearer x"); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a rejected token, got %d", code)
	}
}

type failingSettings struct{}

func (failingSettings) Load(context.Context, string) (*dispatch.Settings, error) {
	return nil, errors.New("connection refused")
}

func (failingSettings) Save(context.Context, string, dispatch.Settings) error {
	return errors.New("connection refused")
}

func TestServer_SettingsUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := maps.NewStaticMapper()
	ev := detour.NewEvaluator(m, routing.NewInsertionSolver(routing.DefaultOptions()), maps.TacticsDefault)
	reg := dispatch.NewRegistry(func(driverID string) *dispatch.Engine {
		return dispatch.NewEngine(dispatch.Options{DriverID: driverID, Evaluator: ev, Settings: failingSettings{}, Logger: logger})
	})
	t.Cleanup(reg.Close)
	s := &testServer{handler: httptransport.NewServer(httptransport.ServerDeps{
		Registry:        reg,
		Mapper:          m,
		DefaultDriverID: "driver-1",
		Logger:          logger,
	}).Routes()}

	for _, path := range []string{"/driver_mode", "/planned_trip"} {
		if code, _ := s.do(t, http.MethodGet, path, nil); code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: expected 503, got %d", path, code)
		}
	}
	if code, _ := s.do(t, http.MethodPut, "/driver_mode", map[string]string{"mode": "pause"}); code != http.StatusServiceUnavailable {
		t.Errorf("PUT /driver_mode: expected 503, got %d", code)
	}
	if ids := reg.Drivers(); len(ids) != 0 {
		t.Errorf("no engine should be cached, got %v", ids)
	}
}
