// Package api is the Operator HTTP API (§6a): a small authenticated
// read-only surface for inspecting in-flight CascadePlans, a provider's
// recent CallEvents, and a call's RecordingAsset status. Mirrors the
// teacher's own internal/api shape (chi.Mux, /api/v1 route group, JSON
// request/response helpers) with JWT-bearer auth in place of the
// teacher's session-cookie + CSRF admin auth.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shiftline/shiftline/internal/api/middleware"
	"github.com/shiftline/shiftline/internal/cascade"
	"github.com/shiftline/shiftline/internal/eventstream"
	"github.com/shiftline/shiftline/internal/recording"
)

// PlanLookup is the subset of cascade.JobQueue the Operator API needs,
// narrowed so handlers can be exercised against an in-memory fake in
// tests rather than a live Redis instance.
type PlanLookup interface {
	LoadPlan(ctx context.Context, shiftID string) (cascade.Plan, bool, error)
}

// EventLookup is the subset of *eventstream.Stream the Operator API needs.
type EventLookup interface {
	Recent(ctx context.Context, providerID string, day time.Time, limit int64) ([]eventstream.Event, error)
}

// RecordingLookup is the subset of *recording.RedisCallLog the Operator
// API needs.
type RecordingLookup interface {
	AssetFor(ctx context.Context, rootCallID string) (recording.Asset, bool, error)
}

// Server holds the Operator API's collaborator handles and the chi router.
type Server struct {
	router *chi.Mux

	plans     PlanLookup
	events    EventLookup
	recLog    RecordingLookup
	messaging BreakerStats
	voice     BreakerStats
	jwtKey    []byte
	limiter   *middleware.IPRateLimiter
}

// NewServer builds the Operator API with all routes mounted. messaging and
// voice may be nil (the /gateways/status fields are then left zero-valued)
// so existing tests can keep constructing a Server without them.
func NewServer(plans PlanLookup, events EventLookup, recLog RecordingLookup, messaging, voice BreakerStats, jwtKey []byte) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		plans:     plans,
		events:    events,
		recLog:    recLog,
		messaging: messaging,
		voice:     voice,
		jwtKey:    jwtKey,
		limiter:   middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(nil))
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))
	r.Use(middleware.RateLimit(s.limiter))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.jwtKey))

			r.Get("/cascades/{shiftID}", s.handleGetCascadePlan)
			r.Get("/providers/{providerID}/events", s.handleListEvents)
			r.Get("/calls/{rootCallID}/recording", s.handleGetRecordingStatus)
			r.Get("/gateways/status", s.handleGatewayStatus)
		})
	})

	slog.Info("operator api routes mounted")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
