package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stratoform/controlplane/dispatcher"
	"github.com/stratoform/controlplane/objectstore"
	"github.com/stratoform/controlplane/packaging"
	"github.com/stratoform/controlplane/runnerlog"
	"github.com/stratoform/controlplane/store"
	"github.com/stratoform/controlplane/verify"
)

// Config is the Server's environment-driven configuration, following the
// teacher's NewServerFromEnv pattern: every field is read once at startup
// and used as read; no field is validated.
type Config struct {
	Region     string
	Version    string
	CORSOrigin string
}

// ConfigFromEnv populates Config from STRATOFORM_* environment variables,
// defaulting CORSOrigin to "*" (open) the way the teacher's
// NewServerFromEnv does for OPSORCH_CORS_ORIGIN.
func ConfigFromEnv() Config {
	origin := strings.TrimSpace(os.Getenv("STRATOFORM_CORS_ORIGIN"))
	if origin == "" {
		origin = "*"
	}
	return Config{
		Region:     os.Getenv("STRATOFORM_REGION"),
		Version:    os.Getenv("STRATOFORM_VERSION"),
		CORSOrigin: origin,
	}
}

// Server bundles every collaborator a request handler needs: the typed
// metadata/object store layers, the packaging engine, the claim
// dispatcher, the log provider, and the caller-identity cache.
type Server struct {
	Config Config
	Log    *zap.Logger

	Metadata    *store.Metadata
	ObjectStore objectstore.Store
	Packaging   *packaging.Engine
	Dispatcher  *dispatcher.Dispatcher
	AccessCache dispatcher.ProjectAccessCache
	RunnerLog   runnerlog.Provider

	// VerifyConfig gates the optional supply-chain admission check a module
	// publish may request by attaching an OCI artifact tar (see
	// handlePublishModule): the provenance attestation's repository/branch
	// and the Rego policy text every admitted artifact must satisfy.
	VerifyConfig verify.Config

	// ResolveAllowedProjects answers "what projects can this caller
	// access" for callers whose token/header only proves identity, not
	// project membership — wired to whatever tenant directory the
	// deployment configures. AccessCache fronts it with the 5-minute TTL
	// spec.md §5 requires.
	ResolveAllowedProjects func(ctx context.Context, callerID string) ([]string, error)

	metrics *requestMetrics
}

// NewServer builds a Server and its chi router. reg is the Prometheus
// registerer request metrics are registered against; pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests.
func NewServer(cfg Config, log *zap.Logger, reg prometheus.Registerer) *Server {
	return &Server{Config: cfg, Log: log, metrics: newRequestMetrics(reg)}
}

// Router assembles the chi router: CORS and metrics apply to every route,
// then the open and protected groups are mounted as sub-routers under
// /api/v1, mirroring the teacher's per-capability handler split at the
// sub-router boundary instead of the single ServeHTTP switch.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.Config.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", IdentityHeader, AllowedProjectsHeader},
		ExposedHeaders:   []string{"x-next-token", "X-Request-ID"},
		MaxAge:           300,
		AllowCredentials: false,
	}))
	r.Use(s.metrics.middleware)
	r.Use(requestIDMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metricsHandler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Group(func(open chi.Router) {
			s.mountOpenRoutes(open)
		})
		v1.Group(func(protected chi.Router) {
			protected.Use(s.requireCaller)
			s.mountProtectedRoutes(protected)
		})
	})

	return r
}

// requestIDMiddleware assigns a request ID for correlation, the Go
// equivalent of the teacher's requestIDFromRequest: an inbound X-Request-ID
// is trusted and echoed, otherwise a fresh uuid is minted (the ambient
// stack's ID generator, see DESIGN.md).
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// writePage renders a paginated list response: the items plus (if there are
// more) an x-next-token header carrying the opaque cursor.
func writePage(w http.ResponseWriter, items any, nextToken string) {
	if nextToken != "" {
		w.Header().Set("x-next-token", nextToken)
	}
	writeJSON(w, http.StatusOK, items)
}

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func parseBoolParam(r *http.Request, name string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name)))
	return v == "1" || v == "true" || v == "yes"
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
