// Package dashboard serves the optional live web UI: a JSON snapshot
// endpoint polled once and a websocket stream pushed on an interval,
// both backed by the same metrics source a CLI run or gaggle manager
// already maintains.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// pushInterval is how often the broker broadcasts a fresh snapshot to
// connected websocket clients.
const pushInterval = 15 * time.Second

// SnapshotFunc returns the current metrics view. Both
// *metrics.Aggregator.Snapshot and *gaggle.Manager.Snapshot satisfy it.
type SnapshotFunc func() metrics.Snapshot

// Server is the dashboard's HTTP server.
type Server struct {
	host     string
	port     int
	snapshot SnapshotFunc
	broker   *Broker
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New builds a dashboard Server bound to host:port, pulling live data
// from snapshot.
func New(host string, port int, snapshot SnapshotFunc) *Server {
	return &Server{
		host:     host,
		port:     port,
		snapshot: snapshot,
		broker:   NewBroker(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the HTTP listener and the periodic broadcast loop,
// blocking until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	router.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpSrv = &http.Server{Addr: addr, Handler: router}

	s.broker.Start()
	defer s.broker.Stop()

	go s.publishLoop(ctx)

	logger := log.WithComponent("dashboard")
	logger.Info().Str("addr", addr).Msg("dashboard listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.snapshot()
			s.broker.Publish(&snap)
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(renderSnapshot(snap)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("dashboard").Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	// Send an immediate snapshot so the client isn't staring at a blank
	// page for up to pushInterval after connecting.
	initial := s.snapshot()
	if err := conn.WriteJSON(renderSnapshot(initial)); err != nil {
		return
	}

	for snap := range sub {
		if err := conn.WriteJSON(renderSnapshot(*snap)); err != nil {
			return
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>gaggle</title></head>
<body>
<h1>gaggle live stats</h1>
<pre id="stats">connecting...</pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  document.getElementById("stats").textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
};
</script>
</body>
</html>`
