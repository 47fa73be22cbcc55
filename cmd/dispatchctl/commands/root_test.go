package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recorded struct {
	method string
	path   string
	driver string
	auth   string
	body   map[string]any
}

// fakeAPI answers every request with status and reply and records what it got.
func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var got []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			method: r.Method,
			path:   r.URL.RequestURI(),
			driver: r.Header.Get("X-Driver-ID"),
			auth:   r.Header.Get("Authorization"),
		}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		got = append(got, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	if cmd.Use != "dispatchctl" {
		t.Errorf("Use = %q", cmd.Use)
	}
	want := map[string]bool{"mode": false, "config": false, "trips": false, "resolve": false, "evaluate": false, "preview": false, "version": false}
	for _, sub := range cmd.Commands() {
		name := strings.Fields(sub.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
	for _, flag := range []string{"api", "driver", "token", "json"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("--%s flag not found", flag)
		}
	}
}

func TestModeCmd(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"mode":"mode3","mode_name":"locality"}`)

	out, err := run(t, "--api", srv.URL, "--driver", "d-7", "--token", "tok", "mode", "mode3")
	if err != nil {
		t.Fatalf("mode: %v", err)
	}
	if out != "locality (mode3)\n" {
		t.Errorf("unexpected output %q", out)
	}
	req := (*got)[0]
	if req.method != http.MethodPut || req.path != "/driver_mode" || req.body["mode"] != "mode3" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.driver != "d-7" || req.auth != "Bearer tok" {
		t.Errorf("missing driver or auth header: %+v", req)
	}

	if _, err := run(t, "--api", srv.URL, "mode", "fast"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
	if len(*got) != 1 {
		t.Errorf("an unknown mode must not reach the API, got %d requests", len(*got))
	}
}

func TestConfigSet_SendsOnlyChangedFlags(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"mode2_detour_max":20,"mode2_easy_detour":10,"mode2_high_profit_threshold":100,"mode3_radius_minutes":20,"mode3_detour_max":10}`)

	out, err := run(t, "--api", srv.URL, "config", "set", "--detour-max", "20")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	body := (*got)[0].body
	if len(body) != 1 || body["mode2_detour_max"] != 20.0 {
		t.Errorf("unexpected patch %v", body)
	}
	if !strings.Contains(out, "detour max 20.0 min") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := run(t, "--api", srv.URL, "config", "set"); err == nil {
		t.Error("expected an error with no flags")
	}
}

func TestTripsCommands(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"plans":[{"origin":"如东","destination":"上海","departure_time":"06:00","time_window_minutes":30,"min_orders":2,"max_orders":4,"completed":true}]}`)

	out, err := run(t, "--api", srv.URL, "trips", "complete", "0")
	if err != nil {
		t.Fatalf("trips complete: %v", err)
	}
	if (*got)[0].path != "/planned_trip/complete?index=0" {
		t.Errorf("unexpected path %s", (*got)[0].path)
	}
	if !strings.Contains(out, "如东") || !strings.Contains(out, "true") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := run(t, "--api", srv.URL, "trips", "update", "0", "--departure", "07:00"); err != nil {
		t.Fatalf("trips update: %v", err)
	}
	body := (*got)[1].body
	if body["index"] != 0.0 || body["departure_time"] != "07:00" {
		t.Errorf("unexpected update body %v", body)
	}
	if _, ok := body["origin"]; ok {
		t.Error("unchanged fields must not be sent")
	}

	if _, err := run(t, "--api", srv.URL, "trips", "complete", "first"); err == nil {
		t.Error("expected an error for a non-numeric index")
	}
}

func TestEvaluateCmd(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"status":"matched","mode":"threshold","detour_minutes":4.5,"profit":"88","new_route_preview":["loc","P","D"],"fingerprint":"abc"}`)

	out, err := run(t, "--api", srv.URL, "evaluate", "--loc", "loc", "--pickup", "P", "--delivery", "D", "--price", "88")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, want := range []string{"matched: +4.5 min, price 88", "loc -> P -> D", "fingerprint: abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	state := (*got)[0].body["current_state"].(map[string]any)
	if state["driver_loc"] != "loc" || len(state["pickups"].([]any)) != 0 {
		t.Errorf("unexpected state %v", state)
	}
}

func TestResolveCmd(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"status":"ok","mode":"pause","mode_name":"paused"}`)

	out, err := run(t, "--api", srv.URL, "resolve", "abc", "--stop")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	body := (*got)[0].body
	if body["fingerprint"] != "abc" || body["accepted"] != false || body["continue_searching"] != false {
		t.Errorf("unexpected body %v", body)
	}
	if !strings.Contains(out, "paused") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAPIErrorIsReported(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusUnprocessableEntity, `{"error":"unresolvable address: \"nowhere\""}`)

	_, err := run(t, "--api", srv.URL, "evaluate", "--loc", "loc", "--pickup", "nowhere", "--delivery", "D", "--price", "1")
	if err == nil || !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "nowhere") {
		t.Fatalf("expected the API error surfaced, got %v", err)
	}
}

func TestJSONOutput(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"mode":"mode2","mode_name":"threshold"}`)
	out, err := run(t, "--api", srv.URL, "--json", "mode")
	if err != nil {
		t.Fatalf("mode: %v", err)
	}
	if !strings.Contains(out, "\"mode_name\": \"threshold\"") {
		t.Errorf("expected indented json, got %q", out)
	}
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "none", "unknown")
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1.2.3") || !strings.Contains(out, "abc123") {
		t.Errorf("unexpected output %q", out)
	}
}
