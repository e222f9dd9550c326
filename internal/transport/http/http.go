// Package http implements the HTTP/WebSocket transport for ttsgraph.
//
// This transport exposes a REST endpoint that compiles one request per call
// and a WebSocket endpoint that compiles a stream of requests over one
// connection. It is best suited for web UIs and scripts.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/ttsgraph/docs"
	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/transport"
)

// maxBodyBytes bounds request bodies; audio uploads travel inline as base64.
const maxBodyBytes = 64 << 20

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	server   *http.Server
	upgrader websocket.Upgrader

	// Hijacked WebSocket connections are invisible to Server.Shutdown.
	mu       sync.Mutex
	sockets  map[*websocket.Conn]struct{}
	stopping bool
}

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{
		port:    port,
		sockets: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Routes returns the transport's request multiplexer.
func (t *Transport) Routes(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	// POST /compile: one request per call.
	mux.HandleFunc("POST /compile", func(w http.ResponseWriter, r *http.Request) {
		t.handleCompile(w, r, handler)
	})

	// GET /ws: one compile per text frame.
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWebSocket(w, r, handler)
	})

	// Swagger UI over the registered OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	slog.Info("http transport listening", "port", t.port)
	return t.Serve(ctx, lis, handler)
}

// Serve runs the server on an existing listener until ctx is cancelled.
// Request contexts derive from ctx, and open WebSocket connections are
// closed on shutdown.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = &http.Server{
		Handler:           t.Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	t.server.RegisterOnShutdown(t.closeSockets)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.Serve(lis); err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// handleCompile processes a POST /compile request.
//
// @Summary     Compile a dialogue into a workflow graph
// @Description Extracts the <audio> section from the prompt, validates the voices and emits the
// @Description synthesis graph. With use_in_video the dialogue is spliced into the given LTX-Video-2 graph.
// @Tags        compile
// @Accept      json
// @Produce     json
// @Param       request  body      message.CompileRequest  true  "Compile request"
// @Success     200  {object}  message.CompileResult  "Compiled graph"
// @Failure     400  {string}  string                 "Invalid request body"
// @Failure     422  {object}  message.CompileResult  "Invalid prompt, voices or parameters"
// @Failure     500  {object}  message.CompileResult  "Internal compiler error"
// @Router      /compile [post]
func (t *Transport) handleCompile(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var req message.CompileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := handler(r.Context(), &req)
	if err != nil {
		slog.Error("compile failed", "error", err)
		http.Error(w, "compile error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(transport.HTTPStatus(result))
	_ = json.NewEncoder(w).Encode(result)
}

// handleWebSocket serves GET /ws. Each text frame carries a compile request
// and is answered with one result frame, in order.
//
// @Summary     Compile requests over a WebSocket
// @Description Upgrades the connection. Every text frame is a CompileRequest; every reply is a CompileResult.
// @Tags        compile
// @Success     101  {string}  string  "Switching protocols"
// @Router      /ws [get]
func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	if !t.track(conn) {
		_ = conn.Close()
		return
	}
	defer t.untrack(conn)
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req message.CompileRequest
		var result *message.CompileResult
		if err := json.Unmarshal(data, &req); err != nil {
			result = &message.CompileResult{Error: "invalid json: " + err.Error(), ErrorKind: string(apperr.KindPayload)}
		} else {
			result, err = handler(ctx, &req)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				result = &message.CompileResult{RequestID: req.ID, Error: err.Error(), ErrorKind: string(apperr.KindInvariant)}
			}
		}

		if err := conn.WriteJSON(result); err != nil {
			slog.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// track registers an open WebSocket. It reports false once shutdown began.
func (t *Transport) track(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopping {
		return false
	}
	t.sockets[conn] = struct{}{}
	return true
}

func (t *Transport) untrack(conn *websocket.Conn) {
	t.mu.Lock()
	delete(t.sockets, conn)
	t.mu.Unlock()
	_ = conn.Close()
}

// closeSockets sends a going-away close frame to every open WebSocket and
// closes it, which ends its read loop.
func (t *Transport) closeSockets() {
	t.mu.Lock()
	t.stopping = true
	conns := make([]*websocket.Conn, 0, len(t.sockets))
	for c := range t.sockets {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.Close()
	}
	if len(conns) > 0 {
		slog.Info("closed websocket connections", "count", len(conns))
	}
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
