package dashboard

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/savesync/savesync/internal/daemon"
)

// Handler turns coordinator notifications into dashboard messages.
// It implements daemon.Observer.
type Handler struct {
	server *Server
	logger *slog.Logger
}

var _ daemon.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		server: server,
		logger: logger.With("component", "dashboard"),
	}
}

// AttemptStarted implements daemon.Observer.
func (h *Handler) AttemptStarted(a daemon.Attempt) {
	h.send(MessageTypeAttemptStarted, AttemptData{
		ID:    a.ID,
		Files: a.Files,
	})
}

// AttemptFinished implements daemon.Observer. A status snapshot follows
// every finished attempt.
func (h *Handler) AttemptFinished(a daemon.Attempt) {
	data := AttemptData{
		ID:          a.ID,
		Files:       a.Files,
		Outcome:     string(a.Outcome),
		FailedStep:  string(a.FailedStep),
		LockRemoved: a.LockRemoved,
		DurationMS:  a.Duration().Milliseconds(),
	}
	if a.Err != nil {
		data.Error = a.Err.Error()
	}
	h.send(MessageTypeAttemptFinished, data)

	h.server.Broadcast(h.server.snapshot())
}

func (h *Handler) send(typ MessageType, data AttemptData) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal attempt data", "error", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
