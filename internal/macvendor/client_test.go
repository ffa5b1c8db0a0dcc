package macvendor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// vendorServer records every request it serves.
type vendorServer struct {
	mu     sync.Mutex
	paths  []string
	times  []time.Time
	status int
	body   string
	*httptest.Server
}

func newVendorServer(status int, body string) *vendorServer {
	vs := &vendorServer{status: status, body: body}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vs.mu.Lock()
		vs.paths = append(vs.paths, r.URL.Path)
		vs.times = append(vs.times, time.Now())
		status, body := vs.status, vs.body
		vs.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	return vs
}

func (vs *vendorServer) requests() []string {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return append([]string(nil), vs.paths...)
}

func (vs *vendorServer) requestTimes() []time.Time {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return append([]time.Time(nil), vs.times...)
}

func TestLookup_Success(t *testing.T) {
	server := newVendorServer(http.StatusOK, "Cisco Systems, Inc\n")
	defer server.Close()

	client := NewClient(server.URL, nil, testLogger())
	vendor := client.Lookup(context.Background(), "0050.5699.1234")

	assert.Equal(t, "Cisco Systems, Inc", vendor)
	require.Len(t, server.requests(), 1)
	assert.Equal(t, "/0050.5699.1234", server.requests()[0])
}

func TestLookup_CacheHitSkipsHTTP(t *testing.T) {
	server := newVendorServer(http.StatusOK, "VMware, Inc.")
	defer server.Close()

	client := NewClient(server.URL, nil, testLogger())

	first := client.Lookup(context.Background(), "0050.5699.1234")
	// Same OUI, different device suffix: must be served from cache.
	second := client.Lookup(context.Background(), "0050.5699.beef")

	assert.Equal(t, "VMware, Inc.", first)
	assert.Equal(t, "VMware, Inc.", second)
	assert.Len(t, server.requests(), 1)
}

func TestLookup_NotFoundDegradesToUnknown(t *testing.T) {
	server := newVendorServer(http.StatusNotFound, `{"errors":{"detail":"Not Found"}}`)
	defer server.Close()

	client := NewClient(server.URL, nil, testLogger())
	vendor := client.Lookup(context.Background(), "0200.4c4f.4f50")

	assert.Equal(t, Unknown, vendor)
}

func TestLookup_TransportErrorDegradesToUnknown(t *testing.T) {
	server := newVendorServer(http.StatusOK, "never served")
	server.Close()

	client := NewClient(server.URL, nil, testLogger())
	vendor := client.Lookup(context.Background(), "0050.5699.1234")

	assert.Equal(t, Unknown, vendor)
}

func TestLookup_FailuresAreNotCached(t *testing.T) {
	server := newVendorServer(http.StatusNotFound, "")
	defer server.Close()

	client := NewClient(server.URL, nil, testLogger())
	assert.Equal(t, Unknown, client.Lookup(context.Background(), "0050.5699.1234"))

	server.mu.Lock()
	server.status = http.StatusOK
	server.body = "Cisco Systems, Inc"
	server.mu.Unlock()

	assert.Equal(t, "Cisco Systems, Inc", client.Lookup(context.Background(), "0050.5699.1234"))
	assert.Len(t, server.requests(), 2)
}

func TestLookup_EnforcesOneSecondGap(t *testing.T) {
	if testing.Short() {
		t.Skip("rate limiter gap test sleeps for about a second")
	}

	server := newVendorServer(http.StatusOK, "Some Vendor")
	defer server.Close()

	client := NewClient(server.URL, nil, testLogger())

	// Distinct OUIs so the cache cannot short-circuit the second call.
	client.Lookup(context.Background(), "0050.5699.1234")
	client.Lookup(context.Background(), "f4cf.e243.aa01")

	times := server.requestTimes()
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 900*time.Millisecond)
}

func TestOUIPrefix(t *testing.T) {
	tests := []struct {
		mac      string
		expected string
	}{
		{mac: "0050.5699.1234", expected: "005056"},
		{mac: "AA:BB:CC:DD:EE:FF", expected: "AABBCC"},
		{mac: "aa-bb-cc-dd-ee-ff", expected: "AABBCC"},
		{mac: "zz", expected: "ZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			assert.Equal(t, tt.expected, ouiPrefix(tt.mac))
		})
	}
}
