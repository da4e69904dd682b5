package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SizeFuncs supplies the gauge callbacks for the engine's in-memory
// structures; the Engine passes closures over its own Pool/Cache/Gateway.
type SizeFuncs struct {
	PoolSize    func() float64
	CacheSize   func() float64
	GatewaySize func() float64
}

// Server handles Prometheus metrics exposure, the liveness check, and a
// minimal build-info endpoint.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer builds a Server bound to addr (":9090" if empty). sizes'
// non-nil fields are wired as gauges polled on scrape.
func NewServer(addr string, sizes SizeFuncs) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if addr[0] != ':' && addr[0] != '0' {
		addr = ":" + addr
	}

	if sizes.PoolSize != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stockrealtime_pool_size",
			Help: "Number of codes currently in the interest set",
		}, sizes.PoolSize)
	}
	if sizes.CacheSize != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stockrealtime_cache_size",
			Help: "Number of quotes currently cached",
		}, sizes.CacheSize)
	}
	if sizes.GatewaySize != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stockrealtime_gateway_clients",
			Help: "Number of connected dashboard sessions",
		}, sizes.GatewaySize)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"service": "stockrealtime"}`))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start(log *zap.Logger) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
