package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	apppkg "github.com/guidoenr/spectrefx/internal/app"
	"github.com/guidoenr/spectrefx/internal/params"
	"github.com/guidoenr/spectrefx/internal/surface"
)

//go:embed static
var staticFiles embed.FS

const (
	defaultStatusInterval = 500 * time.Millisecond
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = 54 * time.Second
	maxMessageSize        = 4096
)

// AppInterface is what the settings surface needs from the running app.
type AppInterface interface {
	Store() *params.Store
	Status() apppkg.Status
	Surface() *surface.Surface
}

// Config controls the settings server.
type Config struct {
	Addr           string
	StatusInterval time.Duration
	Log            *log.Logger
}

// Server exposes the parameter store over HTTP and a websocket. Every
// store change is pushed to all connected clients and every client may
// write parameters, so several views stay bound to the same values.
type Server struct {
	mu        sync.RWMutex
	app       AppInterface
	cfg       Config
	log       *log.Logger
	clients   map[*websocketClient]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Message is the websocket envelope sent to clients.
type Message struct {
	Type   string             `json:"type"`
	ID     params.ID          `json:"id,omitempty"`
	Value  *float64           `json:"value,omitempty"`
	Params []params.Parameter `json:"params,omitempty"`
	Status *apppkg.Status     `json:"status,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// SetRequest is a single parameter write, as sent by websocket clients.
type SetRequest struct {
	ID    params.ID `json:"id"`
	Value *float64  `json:"value"`
}

// NewServer creates the server and its routes. Call Start to run the
// broadcast loops.
func NewServer(app AppInterface, cfg Config) *Server {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}
	s := &Server{
		app:       app,
		cfg:       cfg,
		log:       cfg.Log,
		clients:   make(map[*websocketClient]bool),
		broadcast: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		mux: http.NewServeMux(),
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.mux.Handle("/", http.FileServer(http.FS(static)))
	s.mux.HandleFunc("/api/params", s.handleParams)
	s.mux.HandleFunc("/api/params/reset", s.handleReset)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/frame.png", s.handleFrame)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the change, broadcast and status loops until ctx is done.
func (s *Server) Start(ctx context.Context) {
	sub := s.app.Store().Subscribe(64)
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	go s.changeLoop(ctx, sub)
	go s.broadcastLoop(ctx)
	go s.statusUpdateLoop(ctx)
}

// Run starts the loops and serves on cfg.Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Start(ctx)

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.log.Printf("settings surface on http://%s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web serve: %w", err)
	}
	return nil
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	store := s.app.Store()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, store.Parameters())
	case http.MethodPost:
		var req map[params.ID]float64
		if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize)).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		changes, err := store.Apply(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Printf("params updated over http (%d changed)", len(changes))
		writeJSON(w, http.StatusOK, store.Parameters())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store := s.app.Store()
	if id := params.ID(r.URL.Query().Get("id")); id != "" {
		if _, err := store.Reset(id); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		store.ResetAll()
	}
	writeJSON(w, http.StatusOK, store.Parameters())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	surf := s.app.Surface()
	frame := surf.Frame()
	if frame == nil {
		http.Error(w, "no frame presented yet", http.StatusServiceUnavailable)
		return
	}
	img := frame
	// ?view=1 returns the frame as placed in the viewport, letterbox included
	if r.URL.Query().Get("view") == "1" {
		p := surf.Placement()
		if p.ViewWidth <= 0 || p.ViewHeight <= 0 {
			http.Error(w, "viewport has no size", http.StatusServiceUnavailable)
			return
		}
		img = surf.Snapshot()
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.log.Printf("frame encode: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	// the full table goes out first so a new view starts in sync; holding
	// the lock keeps later changes queued behind it
	s.mu.Lock()
	if data, err := json.Marshal(Message{Type: "params", Params: s.app.Store().Parameters()}); err == nil {
		client.send <- data
	}
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

func (s *Server) changeLoop(ctx context.Context, sub *params.Subscription) {
	for change := range sub.C {
		value := change.Value
		data, err := json.Marshal(Message{Type: "change", ID: change.ID, Value: &value})
		if err != nil {
			continue
		}
		// changes must reach every view, so this send waits for the
		// broadcast loop rather than dropping
		select {
		case s.broadcast <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					s.removeLocked(client)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) statusUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status := s.app.Status()
		data, err := json.Marshal(Message{Type: "status", Status: &status})
		if err != nil {
			continue
		}
		select {
		case s.broadcast <- data:
		default:
			// status is periodic; a full queue just skips one
		}
	}
}

// apply handles a write coming from a websocket client. Errors are
// reported to that client only.
func (s *Server) apply(c *websocketClient, raw []byte) {
	var req SetRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(fmt.Sprintf("bad message: %v", err))
		return
	}
	if req.Value == nil {
		c.sendError("missing value")
		return
	}
	if _, err := s.app.Store().Set(req.ID, *req.Value); err != nil {
		c.sendError(err.Error())
	}
}

func (s *Server) removeLocked(c *websocketClient) {
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		s.removeLocked(client)
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (c *websocketClient) sendError(msg string) {
	data, err := json.Marshal(Message{Type: "error", Error: msg})
	if err != nil {
		return
	}
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		c.server.removeLocked(c)
		c.server.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.server.apply(c, message)
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
