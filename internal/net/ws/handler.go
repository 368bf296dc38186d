// Package ws serves the remote console over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"neocore/internal/console"
	"neocore/internal/telemetry"
)

// Path is where NewMux mounts the console endpoint.
const Path = "/console"

const defaultReplyTimeout = 5 * time.Second

// Submitter is the side of console.Queue the handler needs.
type Submitter interface {
	Submit(ctx context.Context, line string) (console.ExecResponse, error)
}

type HandlerConfig struct {
	Logger telemetry.Logger
	// ReplyTimeout bounds how long one line may wait for the engine.
	ReplyTimeout time.Duration
}

// Reply is one response frame. Session identifies the connection.
type Reply struct {
	Session string `json:"session"`
	console.ExecResponse
}

type Handler struct {
	queue    Submitter
	logger   telemetry.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader
}

func NewHandler(queue Submitter, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	timeout := cfg.ReplyTimeout
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	return &Handler{
		queue:   queue,
		logger:  logger,
		timeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// NewMux mounts the handler and a health probe.
func NewMux(h *Handler) *nethttp.ServeMux {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc(Path, h.Handle)
	return mux
}

// Handle upgrades the request and runs one line per text message until the
// peer disconnects.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[console] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	h.logger.Printf("[console] session %s connected from %s", session, r.RemoteAddr)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("[console] session %s read: %v", session, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		line := strings.TrimSpace(string(payload))
		if line == "" {
			continue
		}

		resp := h.run(r.Context(), line)
		data, err := json.Marshal(Reply{Session: session, ExecResponse: resp})
		if err != nil {
			h.logger.Printf("[console] session %s marshal: %v", session, err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("[console] session %s write: %v", session, err)
			return
		}
	}
}

func (h *Handler) run(parent context.Context, line string) console.ExecResponse {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()
	resp, err := h.queue.Submit(ctx, line)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return console.ExecResponse{Error: "engine did not answer in time"}
		}
		return console.ExecResponse{Error: err.Error()}
	}
	return resp
}
