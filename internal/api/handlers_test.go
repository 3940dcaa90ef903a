package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daybetterd/internal/control"
	"github.com/dokzlo13/daybetterd/internal/device"
	"github.com/dokzlo13/daybetterd/internal/ledger"
	"github.com/dokzlo13/daybetterd/internal/poll"
	"github.com/dokzlo13/daybetterd/internal/token"
)

type fakeController struct {
	registry *device.Registry
	got      []control.Desired
	err      error
}

func (f *fakeController) SetState(ctx context.Context, name string, desired control.Desired) error {
	f.got = append(f.got, desired)
	if f.err != nil {
		return f.err
	}
	if _, ok := f.registry.Get(name); !ok {
		return control.ErrUnknownDevice
	}
	return nil
}

type fakePoller struct {
	touched   []string
	refreshed []string
}

func (f *fakePoller) Touch(name string)   { f.touched = append(f.touched, name) }
func (f *fakePoller) Refresh(name string) { f.refreshed = append(f.refreshed, name) }

func (f *fakePoller) Phase(string, time.Time) poll.Phase { return poll.PhaseIdle }

type fakeHistory struct {
	entries []*ledger.Entry
	limits  []int
}

func (f *fakeHistory) ByDevice(device string, limit int) ([]*ledger.Entry, error) {
	f.limits = append(f.limits, limit)
	var out []*ledger.Entry
	for _, e := range f.entries {
		if e.Device == device && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixture struct {
	ctrl    *fakeController
	poller  *fakePoller
	history *fakeHistory
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := device.NewRegistry(nil)
	r.Add(device.Info{
		Name:         "lamp",
		DisplayName:  "Desk",
		Kind:         device.KindLight,
		Capabilities: device.NewCapabilities(device.CapSwitch, device.CapBrightness),
	})

	f := &fixture{ctrl: &fakeController{registry: r}, poller: &fakePoller{}, history: &fakeHistory{}}
	f.srv = httptest.NewServer(NewHandlers(r, f.ctrl, f.poller, f.history).Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 1.0, body["devices"])
}

func TestListDevices(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/devices", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "lamp", item["name"])
	assert.Equal(t, 255.0, item["brightness"])
	assert.NotContains(t, item, "hs_color")
	assert.Equal(t, "idle", item["poll_phase"])
	assert.Empty(t, f.poller.touched, "listing is not activity")
}

func TestGetDeviceTouches(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/devices/lamp", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Desk", body["display_name"])
	assert.Equal(t, []string{"lamp"}, f.poller.touched)

	resp, _ = f.do(t, http.MethodGet, "/api/devices/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetState(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/devices/lamp/state", `{"on":true,"brightness":40}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lamp", body["name"])

	require.Len(t, f.ctrl.got, 1)
	require.NotNil(t, f.ctrl.got[0].Brightness)
	assert.Equal(t, 40, *f.ctrl.got[0].Brightness)
	assert.Nil(t, f.ctrl.got[0].HS)
}

func TestSetStateErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "bad_json", path: "/api/devices/lamp/state", body: `{`, status: http.StatusBadRequest, code: "invalid_payload"},
		{name: "unknown", path: "/api/devices/ghost/state", body: `{"on":true}`, status: http.StatusNotFound, code: "not_found"},
		{name: "rejected", path: "/api/devices/lamp/state", body: `{"on":true}`, err: &control.ControlError{Device: "lamp", Message: "offline"}, status: http.StatusBadGateway, code: "control_failed"},
		{name: "auth", path: "/api/devices/lamp/state", body: `{"on":true}`, err: &token.AuthError{Reason: token.ReasonExchangeFailed}, status: http.StatusServiceUnavailable, code: "auth_failed"},
		{name: "empty", path: "/api/devices/lamp/state", body: `{}`, err: control.ErrEmptyRequest, status: http.StatusBadRequest, code: "empty_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ctrl.err = tt.err
			resp, body := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"].(map[string]any)["code"])
		})
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/devices/lamp/refresh", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"lamp"}, f.poller.refreshed)
}

func TestDeviceHistory(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.history.entries = []*ledger.Entry{
		{EventType: ledger.EventControlFailed, Timestamp: at, Device: "lamp", CommandID: "c2", Payload: map[string]any{"message": "offline"}},
		{EventType: ledger.EventControlApplied, Timestamp: at, Device: "lamp", CommandID: "c1"},
		{EventType: ledger.EventControlApplied, Timestamp: at, Device: "other", CommandID: "c0"},
	}

	resp, body := f.do(t, http.MethodGet, "/api/devices/lamp/history", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "control_failed", first["event_type"])
	assert.Equal(t, "c2", first["command_id"])
	assert.Equal(t, "offline", first["payload"].(map[string]any)["message"])
	assert.Equal(t, defaultHistoryLimit, f.history.limits[0])

	_, body = f.do(t, http.MethodGet, "/api/devices/lamp/history?limit=1", "")
	assert.Len(t, body["items"].([]any), 1)

	f.do(t, http.MethodGet, "/api/devices/lamp/history?limit=100000", "")
	assert.Equal(t, maxHistoryLimit, f.history.limits[2])

	resp, _ = f.do(t, http.MethodGet, "/api/devices/lamp/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/devices/ghost/history", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
