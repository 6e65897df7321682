package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the operational HTTP endpoint: liveness plus the prometheus
// scrape handler. Bound to loopback by default.
type Server struct {
	srv *http.Server
}

// NewServer builds the ops server. Metrics exposure is optional; /health is
// always served.
func NewServer(addr string, exposeMetrics bool) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if exposeMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
