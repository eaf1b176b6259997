// Package dashboard serves a live view of sync attempts over WebSocket.
//
// Clients connecting to /ws receive a status message, then one message per
// attempt start and finish. /health reports the same status as JSON.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names the kind of payload in a Message.
type MessageType string

const (
	// MessageTypeAttemptStarted is sent when an attempt drains the queue.
	MessageTypeAttemptStarted MessageType = "attempt_started"

	// MessageTypeAttemptFinished is sent when an attempt succeeds or fails.
	MessageTypeAttemptFinished MessageType = "attempt_finished"

	// MessageTypeStatus carries a StatusData snapshot.
	MessageTypeStatus MessageType = "status"
)

// Message is one frame sent to every client.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AttemptData describes one attempt.
type AttemptData struct {
	ID          uint64   `json:"id"`
	Files       []string `json:"files"`
	Outcome     string   `json:"outcome,omitempty"`
	FailedStep  string   `json:"failed_step,omitempty"`
	Error       string   `json:"error,omitempty"`
	LockRemoved bool     `json:"lock_removed,omitempty"`
	DurationMS  int64    `json:"duration_ms,omitempty"`
}

// StatusData is the daemon state shown on connect and by /health.
type StatusData struct {
	Pending    []string `json:"pending"`
	InProgress bool     `json:"in_progress"`
	Clients    int      `json:"clients"`
}

// StatusFunc reports the pending file names and whether an attempt runs.
type StatusFunc func() (pending []string, inProgress bool)

// Config holds server configuration
type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:7777". Port 0 picks a free port.
	Addr string

	// Status supplies queue state. Nil reports an idle, empty daemon.
	Status StatusFunc

	// Logger for server activity (default: slog.Default())
	Logger *slog.Logger
}

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server owns the HTTP listener and the set of connected clients.
type Server struct {
	config Config
	logger *slog.Logger

	ln   net.Listener
	http *http.Server

	// base is cancelled by Stop and bounds every client goroutine.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer returns a stopped server; call Start or Run.
func NewServer(config Config) *Server {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:0"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Status == nil {
		config.Status = func() ([]string, bool) { return nil, false }
	}

	base, cancel := context.WithCancel(context.Background())
	return &Server{
		config:  config,
		logger:  config.Logger.With("component", "dashboard"),
		base:    base,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()
	s.disconnectAll()

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("dashboard stopped")
	return nil
}

// Run starts the server, blocks until ctx is cancelled, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.config.Addr
}

// snapshot builds a status message from the current daemon state.
func (s *Server) snapshot() Message {
	pending, inProgress := s.config.Status()
	if pending == nil {
		pending = []string{}
	}
	data, _ := json.Marshal(StatusData{
		Pending:    pending,
		InProgress: inProgress,
		Clients:    s.ClientCount(),
	})
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: data}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	welcome, err := json.Marshal(s.snapshot())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}
	s.connect(conn, welcome)
}

type healthResponse struct {
	Status     string `json:"status"`
	Clients    int    `json:"clients"`
	Pending    int    `json:"pending"`
	InProgress bool   `json:"in_progress"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pending, inProgress := s.config.Status()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:     "ok",
		Clients:    s.ClientCount(),
		Pending:    len(pending),
		InProgress: inProgress,
	})
}

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>savesync</title></head>
<body>
<h1>savesync</h1>
<p>{{len .Pending}} file(s) pending{{if .InProgress}}, push in progress{{end}}.</p>
<p>Live updates: <code>ws://{{.Host}}/ws</code> &middot; <a href="/health">/health</a></p>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pending, inProgress := s.config.Status()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexPage.Execute(w, struct {
		Host       string
		Pending    []string
		InProgress bool
	}{r.Host, pending, inProgress})
	if err != nil {
		s.logger.Debug("index render failed", "error", err)
	}
}
