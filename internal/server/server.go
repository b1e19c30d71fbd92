// Package server exposes the translation engine over HTTP and websockets.
// Requests and replies are JSON; websocket clients may also subscribe to
// rooms that receive graph updates pushed by the file watcher.
package server

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
)

// Options configures the server
type Options struct {
	KnownTypes []string
	Render     *codegen.Config
	Logger     *zap.Logger
	// CheckOrigin filters websocket upgrades. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
}

// Server serves translation requests
type Server struct {
	logger     *zap.Logger
	hub        *Hub
	engine     *engine
	operations map[string]operation
	upgrader   websocket.Upgrader
	router     chi.Router
}

// SubscribeRequest names a room
type SubscribeRequest struct {
	Room string `json:"room"`
}

// New creates a server and starts its hub. The hub stops with ctx.
func New(ctx context.Context, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	e := &engine{knownTypes: opts.KnownTypes, render: opts.Render, logger: logger}
	s := &Server{
		logger:     logger,
		hub:        NewHub(ctx, logger),
		engine:     e,
		operations: e.operations(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
	s.registerHandlers()
	s.router = s.routes()

	s.hub.Start()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"clients": s.hub.ClientCount(),
		})
	})
	r.Get("/ws", s.serveWebsocket)
	r.Post("/api/{operation}", s.serveOperation)
	return r
}

func (s *Server) registerHandlers() {
	s.hub.RegisterHandler("ping", func(ctx context.Context, c *Client, m *Message) error {
		return c.Reply(m, "pong", map[string]interface{}{"time": time.Now().UTC()})
	})
	s.hub.RegisterHandler("subscribe", func(ctx context.Context, c *Client, m *Message) error {
		var req SubscribeRequest
		if err := decode(m.Data, &req); err != nil {
			return err
		}
		if req.Room == "" {
			return badRequest("room is required")
		}
		c.JoinRoom(req.Room)
		return c.Reply(m, "subscribed", req)
	})
	s.hub.RegisterHandler("unsubscribe", func(ctx context.Context, c *Client, m *Message) error {
		var req SubscribeRequest
		if err := decode(m.Data, &req); err != nil {
			return err
		}
		c.LeaveRoom(req.Room)
		return c.Reply(m, "unsubscribed", req)
	})

	for name, op := range s.operations {
		name, op := name, op
		s.hub.RegisterHandler(name, func(ctx context.Context, c *Client, m *Message) error {
			result, err := op(m.Data)
			if err != nil {
				return err
			}
			return c.Reply(m, name+".result", result)
		})
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish pushes a message to every subscriber of room
func (s *Server) Publish(room, messageType string, payload interface{}) {
	s.hub.BroadcastToRoom(room, &Message{Type: messageType, Payload: payload})
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, s.hub)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()

	s.logger.Debug("websocket connected", zap.String("client", client.ID), zap.String("request_id", RequestIDFrom(r.Context())))
}

func (s *Server) serveOperation(w http.ResponseWriter, r *http.Request) {
	op, ok := s.operations[chi.URLParam(r, "operation")]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorPayload{Message: "unknown operation"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Message: err.Error()})
		return
	}
	result, err := op(body)
	if err != nil {
		status := http.StatusBadRequest
		if isEngineError(err) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func marshalMessage(message *Message) ([]byte, error) {
	if message.Payload != nil {
		data, err := json.Marshal(message.Payload)
		if err != nil {
			return nil, err
		}
		message.Data = data
	}
	return json.Marshal(message)
}

// ListenAndServe serves addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.hub.Shutdown()
		if goerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
