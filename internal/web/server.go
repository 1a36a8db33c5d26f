package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"gifshrink/internal/batch"
	"gifshrink/internal/compressor"
	"gifshrink/internal/config"
	"gifshrink/internal/probe"
	"gifshrink/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	compressor compressor.Compressor
	prober     probe.CachedProber
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CompressRequest asks for one synchronous compression. Unset optional
// fields fall back to the configured compression settings.
type CompressRequest struct {
	InputPath    string   `json:"input_path"`
	OutputPath   string   `json:"output_path"`
	ResizeFactor *float64 `json:"resize_factor,omitempty"`
	MaxColors    *int     `json:"max_colors,omitempty"`
	Quality      *int     `json:"quality,omitempty"`
	Filter       string   `json:"filter,omitempty"`
	Engine       string   `json:"engine,omitempty"`
	Dither       *bool    `json:"dither,omitempty"`
	Background   string   `json:"background,omitempty"`
}

type BatchRequest struct {
	SourceDirectory string `json:"source_directory"`
	TargetDirectory string `json:"target_directory,omitempty"`
	Recursive       *bool  `json:"recursive,omitempty"`
	DryRun          bool   `json:"dry_run"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, comp compressor.Compressor, prober probe.CachedProber) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log,
		compressor: comp,
		prober:     prober,
		router:     mux.NewRouter(),
		wsClients:  make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/batch", s.handleBatch).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/inspect", s.handleInspect).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")
	api.HandleFunc("/cache", s.handleGetCache).Methods("GET")
	api.HandleFunc("/cache", s.handleClearCache).Methods("DELETE")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":     running,
			"statistics":  statsData,
			"probe_cache": s.prober.GetCacheStats(),
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.InputPath == "" || req.OutputPath == "" {
		s.writeError(w, "Input and output paths are required", http.StatusBadRequest)
		return
	}

	params := s.paramsFor(req)
	params.Progress = func(p compressor.Progress) {
		s.broadcastWSMessage("compress_progress", p)
	}

	result, err := s.compressor.Compress(r.Context(), req.InputPath, req.OutputPath, params)
	if err != nil {
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Compressed %s (%.1f%% smaller)", req.InputPath, result.PercentageSaved()),
		Data:    result,
	})
}

func (s *Server) paramsFor(req CompressRequest) compressor.Params {
	params := s.cfg.Compression.Params()
	if req.ResizeFactor != nil {
		params.ResizeFactor = *req.ResizeFactor
	}
	if req.MaxColors != nil {
		params.MaxColors = *req.MaxColors
	}
	if req.Quality != nil {
		params.Quality = *req.Quality
	}
	if req.Filter != "" {
		params.Filter = req.Filter
	}
	if req.Engine != "" {
		params.Engine = req.Engine
	}
	if req.Dither != nil {
		params.Dither = *req.Dither
	}
	if req.Background != "" {
		params.Background = req.Background
	}
	return params
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SourceDirectory == "" {
		s.writeError(w, "Source directory is required", http.StatusBadRequest)
		return
	}

	// Create temporary config for the batch
	cfg := *s.cfg
	cfg.Batch.SourceDirectory = req.SourceDirectory
	cfg.Batch.TargetDirectory = req.TargetDirectory
	cfg.Batch.DryRun = req.DryRun
	if req.Recursive != nil {
		cfg.Batch.Recursive = *req.Recursive
	}
	if err := cfg.ValidateBatch(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	stats := statistics.NewStatistics()
	s.isRunning = true
	s.cancel = cancel
	s.currentStats = stats
	s.operationMutex.Unlock()

	go s.runBatchAsync(ctx, &cfg, stats)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Batch started",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	running := s.isRunning
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	if !running {
		s.writeJSON(w, APIResponse{
			Success: true,
			Message: "No operation in progress",
		})
		return
	}

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	info, err := s.prober.Probe(path)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		s.writeError(w, err.Error(), status)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    info,
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":  stats.GetSummary(),
			"errors":   stats.GetErrorSummary(),
			"snapshot": stats.Snapshot(),
		},
	})
}

func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.prober.GetCacheStats(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.prober.ClearCache()
	s.log.Info("Probe cache cleared")

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Cache cleared",
		Data:    s.prober.GetCacheStats(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runBatchAsync(ctx context.Context, cfg *config.Config, stats *statistics.Statistics) {
	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"source_directory": cfg.Batch.SourceDirectory,
		"target_directory": cfg.Batch.TargetDirectory,
		"dry_run":          cfg.Batch.DryRun,
	})

	runner := batch.NewRunnerWithHooks(cfg, s.log, stats, s.compressor, batch.Hooks{
		FileDone: func(res batch.FileResult) {
			s.broadcastWSMessage("batch_file_done", res)
		},
		Progress: func(p compressor.Progress) {
			s.broadcastWSMessage("compress_progress", p)
		},
	})
	runner.SetProber(s.prober)

	err := runner.Run(ctx)

	s.operationMutex.Lock()
	s.isRunning = false
	s.cancel = nil
	s.operationMutex.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		s.log.Info("Batch stopped by user")
	case err != nil:
		s.broadcastWSMessage("batch_error", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		s.broadcastWSMessage("batch_completed", map[string]interface{}{
			"statistics": stats.Snapshot(),
			"summary":    stats.GetSummary(),
		})
	}
}

// statusForError maps compression error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, compressor.ErrDecode):
		if errors.Is(err, os.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, compressor.ErrTransform):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla/websocket allows one concurrent writer per connection
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
