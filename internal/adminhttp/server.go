package adminhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the relay is still accepting and
// mixing, so /healthz can flip from 200 to 503 once shutdown begins.
type HealthChecker interface {
	ShuttingDown() bool
}

// Server is the admin HTTP surface: health checks and Prometheus
// metrics, on a listener independent of the voice-data TCP port so
// admin traffic never contends with the real-time data plane. Routing
// and middleware are modeled on the teacher's internal/api.Server.
type Server struct {
	router *chi.Mux
}

// NewServer builds the admin router. collector is registered with a
// fresh prometheus.Registry (not the global default) so this package
// never accidentally picks up process/Go-runtime collectors the
// teacher's own internal/api never exposed either.
func NewServer(health HealthChecker, collector *Collector) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	s := &Server{router: chi.NewRouter()}

	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health.ShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("shutting down\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
