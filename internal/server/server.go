// Package server wires the engine's public HTTP surface: the realtime
// WebSocket endpoint, a liveness probe, and the watch-list management
// routes, composed onto a single mux and *http.Server with graceful
// shutdown.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
	"github.com/zheewang/stockrealtime/internal/server/handlers/health"
)

// WatchlistStore is the subset of watchlist.Store the HTTP layer needs.
type WatchlistStore interface {
	Load() ([]model.StockCode, error)
	Add(code model.StockCode) ([]model.StockCode, error)
}

// Ingress is the subset of ingress.Ingress the watch-list route needs to
// push a newly added code into the pool immediately, rather than waiting
// for the next time the file is re-read.
type Ingress interface {
	Watchlist(codes []model.StockCode)
}

// Server is the engine's main application HTTP server.
type Server struct {
	http *http.Server
}

// New builds a Server. realtime handles the WebSocket upgrade and
// streaming; watchlist and ingress back the watch-list management routes.
func New(addr string, realtime http.Handler, watchlist WatchlistStore, ingress Ingress, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/realtime", realtime)
	mux.HandleFunc("/healthz", health.Handler())
	mux.HandleFunc("/watchlist", watchlistHandler(watchlist, ingress, log))

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving in the background, logging (not panicking) if the
// listener ever exits with something other than a clean shutdown.
func (s *Server) Start(log *zap.Logger) {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type addWatchlistRequest struct {
	Code string `json:"code"`
}

// watchlistHandler mirrors custom_stock.py's add-stock route: GET lists
// the current file; POST appends a code to it if new and pushes that code
// into the pool so the scheduler picks it up on its next tick rather than
// waiting for a restart to re-read the file. GET does not touch the pool.
func watchlistHandler(store WatchlistStore, ingress Ingress, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			codes, err := store.Load()
			if err != nil {
				log.Error("watchlist load failed", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, codes)

		case http.MethodPost:
			var req addWatchlistRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			code := model.StockCode(req.Code)
			codes, err := store.Add(code)
			if err != nil {
				log.Error("watchlist add failed", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			ingress.Watchlist([]model.StockCode{code})
			writeJSON(w, codes)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, codes []model.StockCode) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]model.StockCode{"codes": codes})
}
