package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator() *metrics.Aggregator {
	agg := metrics.NewAggregator()
	agg.Record(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, ResponseTime: 10 * time.Millisecond, ElapsedMS: 1})
	return agg
}

func TestHandleStatsReturnsJSONSnapshot(t *testing.T) {
	agg := newTestAggregator()
	s := New("127.0.0.1", 0, agg.Snapshot)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var view snapshotView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(1), view.Aggregate.NumRequests)
	assert.Contains(t, view.ByName, "GET /")
}

func TestHandleIndexServesHTML(t *testing.T) {
	s := New("127.0.0.1", 0, newTestAggregator().Snapshot)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleIndex(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gaggle")
}

func TestWebSocketSendsInitialSnapshotOnConnect(t *testing.T) {
	agg := newTestAggregator()
	s := New("127.0.0.1", 0, agg.Snapshot)
	s.broker.Start()
	defer s.broker.Stop()

	httpServer := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	defer httpServer.Close()

	wsURL := "ws" + httpServer.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var view snapshotView
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, int64(1), view.Aggregate.NumRequests)
}

func TestServerRunRespectsContextCancellation(t *testing.T) {
	s := New("127.0.0.1", 0, newTestAggregator().Snapshot)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
