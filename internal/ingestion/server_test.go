package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drilltrack/internal/metrics"
	"drilltrack/internal/netaddr"
	"drilltrack/internal/netstate"
	surveystorage "drilltrack/internal/storage/survey_storage"
	"drilltrack/internal/survey"
	"drilltrack/internal/util/logger/handlers/slogdiscard"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const uploadR1 = `{
	"run": {"name": "R1", "mn_time": "2024-05-01 10:00", "len": 120, "mine": "North"},
	"points": [
		{"depth": 10.5, "pitch": 1.5, "roll": 0.2, "heading": 180},
		{"depth": 20, "pitch": -0.5, "heading": 181.25}
	]
}`

func init() {
	gin.SetMode(gin.TestMode)
}

func lanResolver() *netaddr.Resolver {
	return netaddr.NewResolver(func() ([]net.Addr, error) {
		return []net.Addr{&net.IPNet{IP: net.IPv4(192, 168, 1, 50), Mask: net.CIDRMask(24, 32)}}, nil
	})
}

func setupServer(t *testing.T, gw Gateway) (*Server, *netstate.State, *metrics.Metrics) {
	t.Helper()

	log := slogdiscard.NewDiscardLogger()
	m := metrics.New()
	state := netstate.New()

	cfg := DefaultConfig()
	cfg.CounterSyncInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.MaxBodyBytes = 4 << 10

	s := NewServer(cfg, state, NewIngestor(gw, m, log), lanResolver(), m, log)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, state, m
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestRouter_Status(t *testing.T) {
	s, _, _ := setupServer(t, &memGateway{})

	w, resp := doRequest(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", resp.Status)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRouter_UploadStoredInSQLite(t *testing.T) {
	store, err := surveystorage.New(surveystorage.Config{
		DBPath: filepath.Join(t.TempDir(), "survey.sqlite"),
	}, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, _, m := setupServer(t, store)

	w, resp := doRequest(t, s, http.MethodPost, "/api/data", uploadR1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Data received and saved", resp.Message)
	require.NotNil(t, resp.ID)
	runID := *resp.ID

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "R1", runs[0].Name)
	assert.Equal(t, *resp.ID, *runs[0].ID)

	points, err := store.ListPoints(context.Background(), *resp.ID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		assert.Equal(t, *resp.ID, *p.RunID)
	}
	assert.Equal(t, 10.5, points[0].Depth)
	assert.Equal(t, 20.0, points[1].Depth)

	assert.Equal(t, uint64(1), s.received.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionRequests.WithLabelValues(metrics.OutcomeSuccess)))

	// the stored run is listed by the status endpoint
	w, resp = doRequest(t, s, http.MethodGet, "/api/data/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", resp.Status)
	assert.Len(t, resp.Data, 1)

	w, resp = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/runs/%d/points", runID), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 2)
}

func TestRouter_DeviceEnvelope(t *testing.T) {
	gw := &memGateway{}
	s, _, _ := setupServer(t, gw)

	body := `{"timestamp": 1714550400000, "deviceId": "tab-7", "dataType": "survey",
		"values": {"name": "R2", "mnTime": "t0"},
		"dataList": [{"depth": 3, "designPitch": 1.0, "repoId": 42}]}`

	w, _ := doRequest(t, s, http.MethodPost, "/api/data", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	runs, _ := gw.ListRuns(context.Background())
	require.Len(t, runs, 1)
	assert.Equal(t, "t0", runs[0].MnTime)

	points, _ := gw.ListPoints(context.Background(), *runs[0].ID)
	require.Len(t, points, 1)
	require.NotNil(t, points[0].DesignPitch)
	assert.Equal(t, 1.0, *points[0].DesignPitch)
}

func TestRouter_RunInsertFails(t *testing.T) {
	gw := new(MockGateway)
	gw.On("InsertRun", mock.Anything, mock.Anything).Return(int64(0), errors.New("database is locked"))

	s, _, m := setupServer(t, gw)

	w, resp := doRequest(t, s, http.MethodPost, "/api/data", uploadR1)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "database is locked")

	gw.AssertNumberOfCalls(t, "InsertPoint", 0)
	assert.Equal(t, uint64(0), s.received.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionRequests.WithLabelValues(metrics.OutcomeRunFailed)))
}

func TestRouter_PointInsertFails(t *testing.T) {
	gw := new(MockGateway)
	gw.On("InsertRun", mock.Anything, mock.Anything).Return(int64(1), nil)
	gw.On("InsertPoint", mock.Anything, mock.Anything).Return(int64(0), errors.New("boom"))

	s, _, m := setupServer(t, gw)

	w, resp := doRequest(t, s, http.MethodPost, "/api/data", uploadR1)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, uint64(0), s.received.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionRequests.WithLabelValues(metrics.OutcomePointFailed)))
}

func TestRouter_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "malformed json", body: `{"run":`, wantCode: http.StatusBadRequest},
		{name: "missing run", body: `{"points": [{"depth": 1}]}`, wantCode: http.StatusBadRequest},
		{name: "empty run name", body: `{"run": {"name": ""}}`, wantCode: http.StatusBadRequest},
		{name: "point without depth", body: `{"run": {"name": "R"}, "points": [{"pitch": 1}]}`, wantCode: http.StatusBadRequest},
		{name: "too large", body: `{"run": {"name": "` + strings.Repeat("x", 8<<10) + `"}}`, wantCode: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(MockGateway)
			s, _, _ := setupServer(t, gw)

			w, resp := doRequest(t, s, http.MethodPost, "/api/data", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "error", resp.Status)
			gw.AssertNotCalled(t, "InsertRun", mock.Anything, mock.Anything)
		})
	}
}

func TestRouter_DataStatusError(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListRuns", mock.Anything).Return(nil, errors.New("no such table"))

	s, _, _ := setupServer(t, gw)

	w, resp := doRequest(t, s, http.MethodGet, "/api/data/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "no such table")
}

func TestRouter_RunPoints(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListPoints", mock.Anything, int64(3)).Return([]survey.Point{{Depth: 1}}, nil)
	gw.On("ListPoints", mock.Anything, int64(4)).Return(nil, errors.New("io error"))

	s, _, _ := setupServer(t, gw)

	w, resp := doRequest(t, s, http.MethodGet, "/api/runs/3/points", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = doRequest(t, s, http.MethodGet, "/api/runs/4/points", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w, _ = doRequest(t, s, http.MethodGet, "/api/runs/abc/points", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	s, _, _ := setupServer(t, &memGateway{})
	doRequest(t, s, http.MethodPost, "/api/data", uploadR1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `drilltrack_ingestion_requests_total{outcome="success"} 1`)
}

func postUpload(t *testing.T, port uint16, body string) int {
	t.Helper()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/data", port)
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestServer_Lifecycle(t *testing.T) {
	s, state, _ := setupServer(t, &memGateway{})

	session, err := s.Start(context.Background(), Options{Port: 0})
	require.NoError(t, err)
	assert.True(t, session.Running)
	assert.NotZero(t, session.Port)
	assert.Equal(t, "192.168.1.50", session.IPAddress)
	assert.Equal(t, session, state.Ingestion.Snapshot())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/status", session.Port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// second start returns the running session unchanged
	again, err := s.Start(context.Background(), Options{Port: 0})
	require.NoError(t, err)
	assert.Equal(t, session.Port, again.Port)

	stopped := s.Stop(context.Background())
	assert.False(t, stopped.Running)
	assert.Equal(t, session.Port, stopped.Port)

	assert.Equal(t, stopped, s.Stop(context.Background()))

	_, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/status", session.Port))
	assert.Error(t, err)
}

func TestServer_CounterSurvivesRestart(t *testing.T) {
	s, _, _ := setupServer(t, &memGateway{})

	session, err := s.Start(context.Background(), Options{})
	require.NoError(t, err)

	const uploads = 3
	for i := 0; i < uploads; i++ {
		require.Equal(t, http.StatusOK, postUpload(t, session.Port, uploadR1))
	}
	require.Equal(t, http.StatusBadRequest, postUpload(t, session.Port, `{}`))

	assert.Eventually(t, func() bool {
		return s.Status().ReceivedCount == uploads
	}, 2*time.Second, 10*time.Millisecond)

	stopped := s.Stop(context.Background())
	assert.Equal(t, uint64(uploads), stopped.ReceivedCount)

	session, err = s.Start(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(uploads), session.ReceivedCount)

	require.Equal(t, http.StatusOK, postUpload(t, session.Port, uploadR1))
	assert.Eventually(t, func() bool {
		return s.Status().ReceivedCount == uploads+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_BindError(t *testing.T) {
	busy, err := net.Listen("tcp4", "0.0.0.0:0")
	require.NoError(t, err)
	t.Cleanup(func() { busy.Close() })
	port := uint16(busy.Addr().(*net.TCPAddr).Port)

	s, _, _ := setupServer(t, &memGateway{})

	session, err := s.Start(context.Background(), Options{Port: port})
	assert.ErrorIs(t, err, ErrBind)
	assert.False(t, session.Running)
	assert.False(t, s.Status().Running)
}

// stallingGateway parks InsertRun until release is closed.
type stallingGateway struct {
	memGateway
	entered chan struct{}
	release chan struct{}
}

func (g *stallingGateway) InsertRun(ctx context.Context, run survey.Run) (int64, error) {
	close(g.entered)
	<-g.release
	return g.memGateway.InsertRun(ctx, run)
}

func TestServer_StopFinishesInFlightRequest(t *testing.T) {
	gw := &stallingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	s, _, _ := setupServer(t, gw)

	session, err := s.Start(context.Background(), Options{})
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", session.Port)

	type reply struct {
		code int
		body Response
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		resp, err := http.Post("http://"+addr+"/api/data", "application/json", strings.NewReader(uploadR1))
		if err != nil {
			replies <- reply{err: err}
			return
		}
		defer resp.Body.Close()
		var body Response
		err = json.NewDecoder(resp.Body).Decode(&body)
		replies <- reply{code: resp.StatusCode, body: body, err: err}
	}()

	select {
	case <-gw.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the gateway")
	}

	stopped := make(chan netstate.IngestionSession, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	// the listener closes right away while the request is still running
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return true
		}
		conn.Close()
		return false
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight request completed")
	default:
	}

	close(gw.release)

	r := <-replies
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, "success", r.body.Status)
	require.NotNil(t, r.body.ID)
	assert.Positive(t, *r.body.ID)

	select {
	case session := <-stopped:
		assert.False(t, session.Running)
		assert.Equal(t, uint64(1), session.ReceivedCount)
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}

	_, err = net.DialTimeout("tcp", addr, 100*time.Millisecond)
	assert.Error(t, err)
}
