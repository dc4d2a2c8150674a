package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fakeMaster answers like the master actor. commandErr is returned for
// every command.
func fakeMaster(healthy bool, commandErr error) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetSnapshotRequest:
			ctx.Respond(domain.GetSnapshotResponse{
				Snapshot:  domain.Snapshot{domain.KEY_SOC: 80.0, domain.KEY_SET_POWER_MODE: "NORMAL"},
				Connected: true,
			})
		case domain.DiagnosticsRequest:
			ctx.Respond(domain.DiagnosticsResponse{Report: map[string]any{
				"poll": map[string]any{"soc": 80},
			}})
		case domain.CommandRequest:
			ctx.Respond(domain.CommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: commandErr},
				Kind:               msg.Command.CommandKind(),
			})
		}
	}
}

func newTestServer(t *testing.T, healthy bool, commandErr error) *Server {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(fakeMaster(healthy, commandErr)))
	cfg := util.LoadTestConfig()
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "e3dc_test_gauge", Help: "test"}))
	return &Server{
		port:        cfg.Port,
		rootContext: as.Root,
		masterActor: pid,
		gatherer:    registry,
	}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {

	rec := do(newTestServer(t, true, nil).RegisterRoutes(), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	rec = do(newTestServer(t, false, nil).RegisterRoutes(), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshot(t *testing.T) {

	rec := do(newTestServer(t, true, nil).RegisterRoutes(), http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, 80.0, snapshot[domain.KEY_SOC])
	assert.Equal(t, "NORMAL", snapshot[domain.KEY_SET_POWER_MODE])
}

func TestDiagnostics(t *testing.T) {

	h := newTestServer(t, true, nil).RegisterRoutes()

	rec := do(h, http.MethodGet, "/api/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report["report_id"])
	assert.Contains(t, report, "poll")

	rec = do(h, http.MethodGet, "/api/diagnostics?format=yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	report = nil
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report["report_id"])
}

func TestServices(t *testing.T) {

	tests := []struct {
		name       string
		commandErr error
		path       string
		body       string
		status     int
	}{
		{"ok", nil, "/api/services/manual_charge", `{"charge_amount": 500}`, http.StatusOK},
		{"missing argument", nil, "/api/services/manual_charge", `{}`, http.StatusBadRequest},
		{"malformed body", nil, "/api/services/set_power_limits", `{"max_charge":`, http.StatusBadRequest},
		{"unknown service", nil, "/api/services/reboot", ``, http.StatusBadRequest},
		{"rejected by coordinator", domain.InvalidArgument("no bound"), "/api/services/set_power_limits", `{}`, http.StatusBadRequest},
		{"not connected", domain.ErrNotConnected, "/api/services/clear_power_limits", ``, http.StatusServiceUnavailable},
		{"auth lost", domain.ErrAuthFailure, "/api/services/clear_power_limits", ``, http.StatusServiceUnavailable},
		{"device failure", domain.NewDeviceError(domain.ErrSendFailure, "set_power_limits", nil), "/api/services/clear_power_limits", ``, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(t, true, tt.commandErr).RegisterRoutes(), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {

	rec := do(newTestServer(t, true, nil).RegisterRoutes(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "e3dc_test_gauge")
}
