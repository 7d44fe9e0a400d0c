package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/metrics"
	"github.com/anstrom/bannerscan/internal/scanning"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *metrics.PrometheusMetrics) {
	t.Helper()
	pm := metrics.NewPrometheusMetrics()
	s := New("127.0.0.1:0", pm, nil, logging.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts, pm
}

func dialProgress(t *testing.T, s *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 0.0, body["progress_clients"])
}

type fixedUptime struct {
	*metrics.PrometheusMetrics
	uptime time.Duration
}

func (f fixedUptime) GetUptime() time.Duration { return f.uptime }

func TestHealth_UptimeFromMetrics(t *testing.T) {
	source := fixedUptime{metrics.NewPrometheusMetrics(), 90 * time.Minute}
	s := New("127.0.0.1:0", source, nil, logging.NewNop())
	t.Cleanup(s.Hub().Close)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1h30m0s", body["uptime"])
}

func TestMetrics(t *testing.T) {
	_, ts, pm := newTestServer(t)
	pm.ObserveProbe("open", 5*time.Millisecond)
	pm.IncrementRuns()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `bannerscan_probe_total{status="open"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRecovery(t *testing.T) {
	s, ts, _ := newTestServer(t)
	s.router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	resp, err := http.Get(ts.URL + "/boom")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestProgressStream(t *testing.T) {
	s, ts, _ := newTestServer(t)
	conn := dialProgress(t, s, ts)

	s.Hub().Publish("run-1", scanning.Progress{
		Host:      "127.0.0.1",
		Completed: 3,
		Total:     10,
		Result:    scanning.PortResult{Host: "127.0.0.1", Port: 22, Status: scanning.StatusOpen, Service: "SSH"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type  string            `json:"type"`
		RunID string            `json:"run_id"`
		Data  scanning.Progress `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, MessageProgress, msg.Type)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, 3, msg.Data.Completed)
	assert.Equal(t, uint16(22), msg.Data.Result.Port)
}

func TestProgressStream_HostCompleted(t *testing.T) {
	s, ts, _ := newTestServer(t)
	conn := dialProgress(t, s, ts)

	result := scanning.NewHostScanResult("127.0.0.1", scanning.PortRange{Start: 1, End: 2})
	result.RunID = "run-2"
	result.Results = []scanning.PortResult{
		{Port: 1, Status: scanning.StatusClosed},
		{Port: 2, Status: scanning.StatusOpen, Service: "Unknown"},
	}
	result.Complete()
	s.Hub().PublishHost(result)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string      `json:"type"`
		Data HostSummary `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, MessageHostCompleted, msg.Type)
	assert.Equal(t, scanning.Counts{Open: 1, Closed: 1, Total: 2}, msg.Data.Counts)
}

func TestProgressHub_DropsForSlowClients(t *testing.T) {
	hub := NewProgressHub(logging.NewNop())
	slow := &client{send: make(chan []byte, 1)}
	hub.register(slow)

	for i := 0; i < 5; i++ {
		hub.Publish("run", scanning.Progress{Completed: i + 1, Total: 5})
	}

	assert.Len(t, slow.send, 1)
	assert.Equal(t, int64(4), hub.Dropped())

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestProgressHub_PublishWithoutClients(t *testing.T) {
	hub := NewProgressHub(logging.NewNop())
	assert.NotPanics(t, func() {
		hub.Publish("run", scanning.Progress{})
	})
	assert.Zero(t, hub.Dropped())
}

func TestServeAndStop(t *testing.T) {
	pm := metrics.NewPrometheusMetrics()
	s := New("127.0.0.1:0", pm, nil, logging.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestGetRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.Equal(t, "unknown", GetRequestID(r))

	var seen string
	h := requestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))
	r.Header.Set("X-Request-ID", "fixed")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "fixed", seen)
}
