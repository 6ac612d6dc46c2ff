package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/status"
	"lecca.io/oasys-watchtower/internal/utils"
)

//go:embed static/*
var staticFS embed.FS

const writeTimeout = 5 * time.Second

type ValidatorDTO struct {
	Address       string   `json:"address"`
	ShortAddress  string   `json:"short_address"`
	Severity      string   `json:"severity"`
	Active        bool     `json:"active"`
	Jailed        bool     `json:"jailed"`
	Staking       string   `json:"staking"`
	Blocks24h     int      `json:"blocks_24h"`
	LastHeight    *uint64  `json:"last_height,omitempty"`
	LastBlockTime string   `json:"last_block_time,omitempty"`
	Source        string   `json:"source,omitempty"`
	Approximate   bool     `json:"approximate"`
	Issues        []string `json:"issues"`
}

type StateDTO struct {
	Type       string         `json:"type"`
	Chain      string         `json:"chain"`
	CheckedAt  string         `json:"checked_at,omitempty"`
	Counts     map[string]int `json:"counts"`
	Validators []ValidatorDTO `json:"validators"`
	CycleError string         `json:"cycle_error,omitempty"`
}

type Server struct {
	chain       string
	port        int
	metricsPort int
	hideLogs    bool
	gatherer    prometheus.Gatherer

	state StateDTO
	stMu  sync.RWMutex

	// WebSocket
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]*sync.Mutex
	broadcast chan []byte
	logChan   chan logger.LogEntry
	mu        sync.Mutex
}

// NewServer builds the status server. A nil gatherer serves the default
// Prometheus registry.
func NewServer(cfg config.Config, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		chain:       cfg.Chain.Name,
		port:        cfg.Advanced.DashboardPort,
		metricsPort: cfg.Advanced.Prometheus.Port,
		hideLogs:    cfg.Advanced.HideLogs,
		gatherer:    gatherer,
		state: StateDTO{
			Type:       "state",
			Chain:      cfg.Chain.Name,
			Counts:     emptyCounts(),
			Validators: []ValidatorDTO{},
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan []byte, 16),
		logChan:   make(chan logger.LogEntry, 100),
	}
}

func emptyCounts() map[string]int {
	return map[string]int{
		status.Healthy.String():  0,
		status.Warning.String():  0,
		status.Critical.String(): 0,
		status.Error.String():    0,
	}
}

// Start serves the dashboard and the metrics endpoint until ctx is done. The
// metrics endpoint shares the dashboard listener when the ports match.
func (s *Server) Start(ctx context.Context) {
	if s.port > 0 {
		logger.SetLogChannel(s.logChan)
		go s.handleMessages(ctx)
		go s.handleLogs(ctx)
		go s.runServer(ctx, s.port, s.Handler())
	}

	if s.metricsPort > 0 && s.metricsPort != s.port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsHandler())
		go s.runServer(ctx, s.metricsPort, mux)
	}
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// Handler exposes the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", s.handleConnections)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.Handle("/static/", fileServer)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		content, _ := staticFS.ReadFile("static/index.html")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(content)
	})

	if s.metricsPort > 0 && s.metricsPort == s.port {
		mux.Handle("/metrics", s.metricsHandler())
	}
	return mux
}

func (s *Server) runServer(ctx context.Context, port int, handler http.Handler) {
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("DASH", "HTTP server listening on %s", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		logger.Info("DASH", "HTTP server on %s shutting down", addr)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("DASH", "HTTP server failed on %s: %v", addr, err)
	}
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("DASH", "WS upgrade failed: %v", err)
		return
	}

	writeMu := &sync.Mutex{}
	if state, err := s.stateJSON(); err == nil {
		_ = writeTo(ws, writeMu, state)
	}
	if bytes, err := json.Marshal(map[string]interface{}{"type": "config", "hide_logs": s.hideLogs}); err == nil {
		_ = writeTo(ws, writeMu, bytes)
	}

	s.mu.Lock()
	s.clients[ws] = writeMu
	s.mu.Unlock()

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				s.drop(ws)
				return
			}
		}
	}()
}

func writeTo(ws *websocket.Conn, mu *sync.Mutex, msg []byte) error {
	mu.Lock()
	defer mu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, msg)
}

func (s *Server) drop(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ws]; ok {
		delete(s.clients, ws)
		ws.Close()
	}
}

func (s *Server) fanOut(msg []byte) {
	s.mu.Lock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for c, m := range s.clients {
		targets[c] = m
	}
	s.mu.Unlock()

	for client, writeMu := range targets {
		if err := writeTo(client, writeMu, msg); err != nil {
			s.drop(client)
		}
	}
}

func (s *Server) handleMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.broadcast:
			s.fanOut(msg)
		}
	}
}

type logMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

func (s *Server) handleLogs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-s.logChan:
			bytes, err := json.Marshal(logMessage{
				Type:      "log",
				Timestamp: entry.Timestamp,
				Level:     entry.Level,
				Component: entry.Component,
				Message:   entry.Message,
			})
			if err == nil {
				s.fanOut(bytes)
			}
		}
	}
}

// PublishStatuses replaces the snapshot with a finished cycle and pushes it to
// connected clients. cycleErr is set when the cycle aborted.
func (s *Server) PublishStatuses(checkedAt time.Time, statuses []status.ValidatorStatus, cycleErr error) {
	s.stMu.Lock()
	if cycleErr != nil {
		s.state.CycleError = cycleErr.Error()
	} else {
		s.state = buildState(s.chain, checkedAt, statuses)
	}
	s.stMu.Unlock()

	state, err := s.stateJSON()
	if err != nil {
		logger.Warn("DASH", "Failed to marshal state for broadcast: %v", err)
		return
	}
	select {
	case s.broadcast <- state:
	default:
		logger.Debug("DASH", "broadcast queue full, dropping update")
	}
}

func buildState(chain string, checkedAt time.Time, statuses []status.ValidatorStatus) StateDTO {
	st := StateDTO{
		Type:       "state",
		Chain:      chain,
		CheckedAt:  checkedAt.UTC().Format(time.RFC3339),
		Counts:     emptyCounts(),
		Validators: make([]ValidatorDTO, 0, len(statuses)),
	}

	for _, v := range statuses {
		st.Counts[v.Severity.String()]++
		dto := ValidatorDTO{
			Address:      v.Address.String(),
			ShortAddress: v.ShortAddress,
			Severity:     v.Severity.String(),
			Active:       v.IsActive,
			Jailed:       v.IsJailed,
			Staking:      utils.FormatStake(v.Stake),
			Blocks24h:    v.BlocksValidated24h,
			LastHeight:   v.LastBlockNumber,
			Source:       string(v.Source),
			Approximate:  v.Approximate,
			Issues:       v.Issues,
		}
		if dto.Issues == nil {
			dto.Issues = []string{}
		}
		if v.LastBlockTime != nil {
			dto.LastBlockTime = v.LastBlockTime.UTC().Format(time.RFC3339)
		}
		st.Validators = append(st.Validators, dto)
	}

	// Worst first, then by address.
	sort.SliceStable(st.Validators, func(i, j int) bool {
		ri, rj := severityRank(st.Validators[i].Severity), severityRank(st.Validators[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return st.Validators[i].Address < st.Validators[j].Address
	})
	return st
}

func severityRank(name string) int {
	for _, s := range []status.Severity{status.Healthy, status.Warning, status.Critical, status.Error} {
		if s.String() == name {
			return int(s)
		}
	}
	return -1
}

func (s *Server) stateJSON() ([]byte, error) {
	s.stMu.RLock()
	defer s.stMu.RUnlock()
	return json.Marshal(s.state)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.stateJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(state)
}
