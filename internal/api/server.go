package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillm/kis-trader/internal/botstate"
	"github.com/kirillm/kis-trader/internal/domain"
	"github.com/kirillm/kis-trader/internal/metrics"
	"github.com/kirillm/kis-trader/pkg/utils"
)

type Server struct {
	logger *utils.Logger
	store  *botstate.Store
	port   int

	httpServer *http.Server
}

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	IsRunning *bool       `json:"isRunning,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ConfigRequest - тело POST /api/bot/config. Quantity необязателен.
type ConfigRequest struct {
	Symbol    string `json:"symbol"`
	BuyPrice  *int64 `json:"buyPrice"`
	SellPrice *int64 `json:"sellPrice"`
	Quantity  int64  `json:"quantity"`
}

// StatusView - представление BotState для клиента
type StatusView struct {
	IsRunning  bool       `json:"isRunning"`
	Symbol     string     `json:"symbol"`
	BuyPrice   int64      `json:"buyPrice"`
	SellPrice  int64      `json:"sellPrice"`
	Quantity   int64      `json:"quantity"`
	Position   string     `json:"position"`
	LastPrice  int64      `json:"lastPrice,omitempty"`
	LastTickAt *time.Time `json:"lastTickAt,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

func NewServer(logger *utils.Logger, store *botstate.Store, port int) *Server {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Server{
		logger: logger.With("api"),
		store:  store,
		port:   port,
	}
}

// Handler собирает маршруты Control API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/bot/status", s.handleStatus)
	mux.HandleFunc("/api/bot/config", s.handleConfig)
	mux.HandleFunc("/api/bot/toggle", s.handleToggle)
	mux.HandleFunc("/api/", s.handleNotFound)

	return withCORS(mux)
}

// Start блокируется до остановки сервера. После Shutdown возвращает nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("Starting HTTP server on %s", addr)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendSuccess(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus - снимок состояния без побочных эффектов
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendSuccess(w, NewStatusView(s.store.Snapshot()))
}

// handleConfig - замена символа и порогов, позиция сбрасывается в FLAT
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Symbol) == "" {
		s.sendError(w, "Symbol is required", http.StatusBadRequest)
		return
	}
	if req.BuyPrice == nil || req.SellPrice == nil {
		s.sendError(w, "buyPrice and sellPrice are required", http.StatusBadRequest)
		return
	}

	state, err := s.store.SetConfig(domain.BotConfig{
		Symbol:        req.Symbol,
		BuyThreshold:  *req.BuyPrice,
		SellThreshold: *req.SellPrice,
		Quantity:      req.Quantity,
	})
	if errors.Is(err, domain.ErrInvalidInput) {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.sendError(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusInternalServerError)
		return
	}

	s.logger.Info("Config updated: %s buy<=%d sell>=%d qty=%d, position reset to %s",
		state.Config.Symbol, state.Config.BuyThreshold, state.Config.SellThreshold,
		state.Config.Quantity, state.Position)

	s.sendJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := s.store.ToggleRun()
	running := state.IsRunning()
	s.logger.Info("Bot toggled, running=%v", running)

	s.sendJSON(w, http.StatusOK, Response{Success: true, IsRunning: &running})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.sendError(w, "API Not Found", http.StatusNotFound)
}

// NewStatusView переводит состояние в форму ответа
func NewStatusView(st domain.BotState) StatusView {
	v := StatusView{
		IsRunning: st.IsRunning(),
		Symbol:    st.Config.Symbol,
		BuyPrice:  st.Config.BuyThreshold,
		SellPrice: st.Config.SellThreshold,
		Quantity:  st.Config.Quantity,
		Position:  string(st.Position),
		LastPrice: st.LastPrice,
		LastError: st.LastError,
	}
	if !st.LastTickAt.IsZero() {
		at := st.LastTickAt
		v.LastTickAt = &at
	}
	return v
}

// Helper methods
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	s.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, statusCode, Response{
		Success: false,
		Error:   message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}
