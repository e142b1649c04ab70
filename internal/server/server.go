// Package server exposes the diagnostic API over HTTP and streams live
// readings to WebSocket clients. It is a thin surface over the connection
// manager and the diagnostic services; higher orchestration layers (chat,
// reasoning) sit on top of this boundary.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shaunagostinho/obdlink/internal/diag"
	"github.com/shaunagostinho/obdlink/internal/manager"
	"github.com/shaunagostinho/obdlink/internal/profile"
)

// streamPIDs are the parameters broadcast to WebSocket clients.
var streamPIDs = []string{"0C", "0D", "05", "0F", "11", "04", "2F", "0B"}

const streamInterval = time.Second

// Server serves the diagnostic API and the live-data stream.
type Server struct {
	addr  string
	mgr   *manager.Manager
	store *profile.Store

	dtc     *diag.DTCReader
	live    *diag.LiveReader
	vehicle *diag.VehicleReader

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader

	// Vehicle identity is fetched once per connection handle and cached
	// until the handle generation moves on.
	vehicleMu   sync.Mutex
	vehicleInfo *diag.VehicleInfo
	vehicleGen  uint64
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure streamed to WebSocket clients.
type Frame struct {
	Readings map[string]diag.LiveReading `json:"readings,omitempty"`
	Info     manager.ConnectionInfo      `json:"info"`
	Stamp    int64                       `json:"stamp"` // Unix ms
}

type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// New creates a Server over an existing manager and profile store.
func New(addr string, mgr *manager.Manager, store *profile.Store) *Server {
	return &Server{
		addr:    addr,
		mgr:     mgr,
		store:   store,
		dtc:     diag.NewDTCReader(mgr),
		live:    diag.NewLiveReader(mgr),
		vehicle: diag.NewVehicleReader(mgr),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/dtcs", s.handleDTCs)
	mux.HandleFunc("/api/dtcs/clear", s.handleClear)
	mux.HandleFunc("/api/live", s.handleLive)
	mux.HandleFunc("/api/vehicle", s.handleVehicle)
	mux.HandleFunc("/api/profiles", s.handleProfiles)
	mux.HandleFunc("/ws", s.handleWS)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	go s.streamLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.store.DefaultProfile()
	var body struct {
		Profile string                    `json:"profile"`
		Config  *profile.ConnectionConfig `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		if body.Profile != "" {
			named, err := s.store.Profile(body.Profile)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
				return
			}
			cfg = named
		}
		if body.Config != nil {
			cfg = *body.Config
		}
	}

	info, err := s.mgr.Connect(r.Context(), cfg)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.store.RecordConnection(info.Port, info.Protocol, info.BaudRate)
	s.writeJSON(w, map[string]any{"success": true, "protocol": info.Protocol, "port": info.Port})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if err := s.mgr.Disconnect(); err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.mgr.Info()
	status := map[string]any{
		"connected": s.mgr.IsConnected(),
		"info":      info,
	}
	if s.mgr.IsConnected() {
		if v, err := s.mgr.Voltage(r.Context()); err == nil {
			status["voltage"] = v
		}
	}
	s.writeJSON(w, status)
}

func (s *Server) handleDTCs(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	var (
		records []diag.DTCRecord
		err     error
	)
	switch kind {
	case "", "stored":
		records, err = s.dtc.ReadStored(r.Context())
	case "pending":
		records, err = s.dtc.ReadPending(r.Context())
	default:
		s.writeError(w, http.StatusBadRequest, "invalid_config", "kind must be stored or pending")
		return
	}
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.mgr.RecordDTCCount(len(records))
	s.writeJSON(w, map[string]any{"dtcs": records, "count": len(records)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Confirm {
		s.writeError(w, http.StatusBadRequest, "invalid_config", "body must be {\"confirm\": true}")
		return
	}
	if err := s.dtc.Clear(r.Context(), body.Confirm); err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	pidParam := r.URL.Query().Get("pids")
	if pidParam == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_config", "pids query parameter required")
		return
	}
	readings, err := s.live.ReadMany(r.Context(), strings.Split(pidParam, ","))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.writeJSON(w, readings)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	gen := s.mgr.Info().Generation

	s.vehicleMu.Lock()
	cached := s.vehicleInfo
	cachedGen := s.vehicleGen
	s.vehicleMu.Unlock()

	if cached != nil && cachedGen == gen && s.mgr.IsConnected() {
		s.writeJSON(w, cached)
		return
	}

	info, err := s.vehicle.ReadOnce(r.Context())
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.vehicleMu.Lock()
	s.vehicleInfo = info
	s.vehicleGen = gen
	s.vehicleMu.Unlock()
	s.writeJSON(w, info)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"profiles": s.store.ProfileNames(),
		"last":     s.store.LastSuccessful(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] ws upgrade: %v", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 16)}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	log.Printf("[server] ws client connected (%d total)", n)

	go client.writePump()
	go s.readPump(client)
}

func (s *Server) readPump(c *wsClient) {
	defer s.dropClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) dropClient(c *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.clientsMu.Unlock()
}

// streamLoop polls the stream PIDs while at least one WebSocket client is
// attached and the manager is connected, broadcasting one frame per tick.
func (s *Server) streamLoop(ctx context.Context) {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.clientsMu.RLock()
		idle := len(s.clients) == 0
		s.clientsMu.RUnlock()
		if idle {
			continue
		}

		frame := Frame{Info: s.mgr.Info(), Stamp: time.Now().UnixMilli()}
		if s.mgr.IsConnected() {
			readings, err := s.live.ReadMany(ctx, streamPIDs)
			if err != nil {
				log.Printf("[server] stream read: %v", err)
			} else {
				frame.Readings = readings
			}
		}

		msg, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		s.broadcast(msg)
	}
}

func (s *Server) broadcast(msg []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default: // slow client, drop the frame
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{ErrorKind: kind, Message: msg})
}

// writeManagerError maps typed connection errors onto HTTP statuses while
// preserving the stable error kind.
func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	kind := manager.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case manager.KindInvalidConfig:
		status = http.StatusBadRequest
	case manager.KindNotConnected:
		status = http.StatusConflict
	case "":
		kind = "internal"
		status = http.StatusInternalServerError
	}
	s.writeError(w, status, string(kind), err.Error())
}
