// Package webhook exposes the Twilio callbacks, signed media downloads and
// the operator endpoints over HTTP.
package webhook

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Engine Ledger Broadcaster Documents LinkVerifier

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"recibos/internal/broadcast"
	"recibos/internal/ledger"
	"recibos/internal/medialink"
	"recibos/internal/workflow"
	"recibos/pkg/platform/httputil"
	"recibos/pkg/platform/middleware/admin"
	"recibos/pkg/platform/middleware/metadata"
	request "recibos/pkg/platform/middleware/request"
	"recibos/pkg/platform/middleware/requesttime"
)

// Engine answers one inbound WhatsApp event.
type Engine interface {
	HandleInbound(ctx context.Context, ev workflow.InboundEvent) (workflow.Reply, error)
}

type Ledger interface {
	ApplyStatus(ctx context.Context, messageID, status, errorCode, errorMessage string) error
	BuildReport(ctx context.Context, periods ...string) ([]ledger.ReportRow, error)
}

type Broadcaster interface {
	Run(ctx context.Context, opts broadcast.Options) (broadcast.Summary, error)
}

type Documents interface {
	Open(ctx context.Context, ref string) ([]byte, error)
}

type LinkVerifier interface {
	Verify(token string) (*medialink.Claims, error)
}

// Dependencies wires the handler. Broadcaster may be nil, which disables
// POST /admin/broadcast.
type Dependencies struct {
	Engine      Engine
	Ledger      Ledger
	Broadcaster Broadcaster
	Documents   Documents
	Links       LinkVerifier
}

// Handler serves every HTTP route of the service.
type Handler struct {
	deps           Dependencies
	logger         *slog.Logger
	adminVerify    admin.Verifier
	signature      *SignatureValidator
	metricsHandler http.Handler
	timeout        time.Duration
	checks         []healthCheck
}

// HealthCheck reports whether one backend is reachable.
type HealthCheck func(ctx context.Context) error

type healthCheck struct {
	name  string
	check HealthCheck
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithAdminToken requires X-Admin-Token on /admin routes. An empty token
// leaves them open.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminVerify = admin.PlainToken(token)
	}
}

// WithAdminTokenHash is WithAdminToken against a bcrypt hash.
func WithAdminTokenHash(hash string) Option {
	return func(h *Handler) {
		h.adminVerify = admin.HashedToken(hash)
	}
}

// WithSignatureValidation checks X-Twilio-Signature on the Twilio routes.
func WithSignatureValidation(v *SignatureValidator) Option {
	return func(h *Handler) {
		h.signature = v
	}
}

// WithMetricsHandler mounts the Prometheus scrape endpoint on /metrics.
func WithMetricsHandler(mh http.Handler) Option {
	return func(h *Handler) {
		h.metricsHandler = mh
	}
}

// WithHealthCheck adds a named backend probe to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks = append(h.checks, healthCheck{name: name, check: check})
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func New(deps Dependencies, opts ...Option) *Handler {
	h := &Handler{deps: deps, logger: slog.Default(), timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(chimw.Timeout(h.timeout))

	r.Get("/healthz", h.handleHealth)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}
	r.Get("/media/{token}", h.handleMedia)

	r.Route("/twilio", func(tr chi.Router) {
		if h.signature != nil {
			tr.Use(h.signature.Middleware(h.logger))
		}
		tr.Post("/webhook", h.handleInbound)
		tr.Post("/status", h.handleStatus)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(admin.RequireAdminToken(h.adminVerify, h.logger))
		if h.deps.Broadcaster != nil {
			ar.Post("/broadcast", h.handleBroadcast)
		}
		ar.Get("/report", h.handleReport)
	})
}

// Router builds a standalone chi router with every route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth answers 200 when every probe passes and 503 otherwise.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	for _, c := range h.checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(h.checks))
		}
		if err := c.check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", c.name, "error", err)
			resp.Checks[c.name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}
