package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagolovach/ise-session-manager/internal/config"
	"github.com/dagolovach/ise-session-manager/internal/ise"
	"github.com/dagolovach/ise-session-manager/internal/model"
	"github.com/dagolovach/ise-session-manager/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCollector struct {
	result *model.CollectionResult
	err    error
	calls  []string
}

func (f *fakeCollector) Collect(ctx context.Context, target string) (*model.CollectionResult, error) {
	f.calls = append(f.calls, target)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type groupUpdate struct {
	mac     string
	groupID string
}

type fakeDirectory struct {
	groups    map[string]string
	groupID   string
	lookupErr error
	updateErr error
	updates   []groupUpdate
}

func (f *fakeDirectory) GetEndpointGroups(ctx context.Context) (map[string]string, error) {
	return f.groups, nil
}

func (f *fakeDirectory) GetEndpointGroupID(ctx context.Context, mac string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.groupID, nil
}

func (f *fakeDirectory) UpdateEndpointGroup(ctx context.Context, mac, groupID string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, groupUpdate{mac: mac, groupID: groupID})
	return nil
}

type fakeSnapshots struct {
	dir     string
	written []*model.CollectionResult
	loaded  *model.CollectionResult
	loadErr error
}

func (f *fakeSnapshots) Write(result *model.CollectionResult) error {
	f.written = append(f.written, result)
	return nil
}

func (f *fakeSnapshots) Load() (*model.CollectionResult, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loaded, nil
}

func (f *fakeSnapshots) Dir() string { return f.dir }

type fakeInventory struct {
	targets []model.Target
}

func (f *fakeInventory) Targets() []model.Target { return f.targets }

func (f *fakeInventory) Resolve(name string) (model.Target, bool) {
	for _, t := range f.targets {
		if t.Name == name || t.Host == name {
			return t, true
		}
	}
	return model.Target{}, false
}

type fakePublisher struct {
	published []*model.CollectionResult
	err       error
}

func (f *fakePublisher) Publish(result *model.CollectionResult) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, result)
	return nil
}

type testServer struct {
	*Server
	collector *fakeCollector
	directory *fakeDirectory
	snapshots *fakeSnapshots
	publisher *fakePublisher
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	collector := &fakeCollector{result: flaggedResult()}
	directory := &fakeDirectory{
		groups:  map[string]string{"g-blacklist": "Blacklist", "g-guest": "GuestEndpoints"},
		groupID: "g-guest",
	}
	snapshots := &fakeSnapshots{dir: t.TempDir()}
	inventory := &fakeInventory{targets: []model.Target{{Name: "lab-3850", Host: "10.1.1.10"}}}
	publisher := &fakePublisher{}

	s, err := NewServer(cfg, collector, directory, snapshots, inventory, publisher, nil, testLogger())
	require.NoError(t, err)

	return &testServer{
		Server:    s,
		collector: collector,
		directory: directory,
		snapshots: snapshots,
		publisher: publisher,
	}
}

func openConfig() *config.Config {
	return &config.Config{ISEBaseURL: "https://ise.example.com:9060/ers/config/"}
}

func flaggedResult() *model.CollectionResult {
	return &model.CollectionResult{
		RunID:        "run-1",
		Target:       "10.1.1.10",
		SessionCount: "3",
		MACs:         []string{"0898.ef12.aabb"},
		Sessions: map[string]*model.ClassifiedSession{
			"0898.ef12.aabb": {
				Status:     "Unauthorized",
				Interface:  "GigabitEthernet1/0/24",
				MACAddress: "0898.ef12.aabb",
				IPAddress:  "10.20.30.44",
				UserName:   "08-98-EF-12-AA-BB",
				Method:     "mab",
				Vendor:     "Axis Communications AB",
			},
		},
	}
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func postForm(s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := get(ts.Server, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Check switch access sessions")
	assert.Contains(t, rec.Body.String(), "lab-3850")
}

func TestCheckResult_RendersFlaggedSessions(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := postForm(ts.Server, "/check-result", url.Values{"ip_address": {"10.1.1.10"}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "0898.ef12.aabb")
	assert.Contains(t, body, "Unauthorized")
	assert.Contains(t, body, "Axis Communications AB")

	assert.Equal(t, []string{"10.1.1.10"}, ts.collector.calls)
	require.Len(t, ts.snapshots.written, 1)
	require.Len(t, ts.publisher.published, 1)
	assert.Equal(t, "run-1", ts.publisher.published[0].RunID)
}

func TestCheckResult_ResolvesDeviceNames(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := postForm(ts.Server, "/check-result", url.Values{"ip_address": {"lab-3850"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"10.1.1.10"}, ts.collector.calls)
}

func TestCheckResult_MissingTarget(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := postForm(ts.Server, "/check-result", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter a switch address")
	assert.Empty(t, ts.collector.calls)
}

func TestCheckResult_CollectionFailure(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.collector.err = errors.New("connection refused")

	rec := postForm(ts.Server, "/check-result", url.Values{"ip_address": {"10.9.9.9"}})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Body.String(), "Could not collect from 10.9.9.9")
	assert.Empty(t, ts.snapshots.written)
	assert.Empty(t, ts.publisher.published)
}

func TestCheckResult_PublishFailureDoesNotFailRequest(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.publisher.err = errors.New("nats down")

	rec := postForm(ts.Server, "/check-result", url.Values{"ip_address": {"10.1.1.10"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0898.ef12.aabb")
	require.Len(t, ts.snapshots.written, 1)
}

func TestCheckResult_ZeroFindings(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.collector.result = &model.CollectionResult{
		RunID:        "run-2",
		Target:       "10.1.1.10",
		SessionCount: "5",
		Sessions:     map[string]*model.ClassifiedSession{},
	}

	rec := postForm(ts.Server, "/check-result", url.Values{"ip_address": {"10.1.1.10"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No failed or unauthorized sessions")
}

func TestMACPage(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := get(ts.Server, "/mac/AA:BB:CC:DD:EE:FF")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "GuestEndpoints")
	assert.Contains(t, body, "Blacklist")
	assert.Contains(t, body, "/update/AA:BB:CC:DD:EE:FF")
}

func TestMACPage_UnknownEndpointStillOffersAssignment(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.directory.lookupErr = ise.ErrEndpointNotFound

	rec := get(ts.Server, "/mac/AA:BB:CC:DD:EE:FF")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Unknown")
	assert.Contains(t, body, "ise_group_id")
}

func TestEndpointSearch_InvalidMAC(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := postForm(ts.Server, "/endpoint", url.Values{"mac": {"not-a-mac"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a valid MAC address")
}

func TestEndpointSearch_ValidMAC(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := postForm(ts.Server, "/endpoint", url.Values{"mac": {"AA:BB:CC:DD:EE:FF"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Current ISE group")
}

func TestUpdateGroup(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := postForm(ts.Server, "/update/AA:BB:CC:DD:EE:FF", url.Values{"ise_group_id": {"g-blacklist"}})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Body.String(), "reassigned successfully")
	require.Len(t, ts.directory.updates, 1)
	assert.Equal(t, groupUpdate{mac: "AA:BB:CC:DD:EE:FF", groupID: "g-blacklist"}, ts.directory.updates[0])
}

func TestUpdateGroup_Failure(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.directory.updateErr = errors.New("ise rejected the update")

	rec := postForm(ts.Server, "/update/AA:BB:CC:DD:EE:FF", url.Values{"ise_group_id": {"g-blacklist"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "update failed")
}

func TestSnapshotAPI(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.snapshots.loaded = flaggedResult()

	rec := get(ts.Server, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded model.CollectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Sessions, 1)
}

func TestSnapshotAPI_NoSnapshotYet(t *testing.T) {
	ts := newTestServer(t, openConfig())
	ts.snapshots.loadErr = snapshot.ErrNoSnapshot

	rec := get(ts.Server, "/api/snapshot")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no snapshot recorded yet")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := get(ts.Server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["ise_configured"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, openConfig())

	rec := get(ts.Server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStaticServesSnapshotDir(t *testing.T) {
	ts := newTestServer(t, openConfig())
	path := filepath.Join(ts.snapshots.Dir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"run-1"}`), 0644))

	rec := get(ts.Server, "/static/result.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")
}
