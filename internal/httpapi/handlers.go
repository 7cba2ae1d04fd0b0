package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"cityinfo.org/internal/auth"
	"cityinfo.org/internal/cityinfo"
	"cityinfo.org/internal/notify"
	"cityinfo.org/internal/obs"
)

// ReadyProbe reports whether backing services answer.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// TokenVerifier is satisfied by *auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (auth.ClaimSet, error)
}

// Authorizer is satisfied by *auth.Evaluator.
type Authorizer interface {
	Authorize(claims auth.ClaimSet, policy string) error
}

// Notifier is satisfied by *notify.Dispatcher. Notify must not block.
type Notifier interface {
	Notify(msg notify.Message) bool
}

// Deps are the collaborators the HTTP layer needs. All but Ready are required.
type Deps struct {
	Issuer   *auth.Issuer
	Verifier TokenVerifier
	Policies Authorizer
	Store    cityinfo.Store
	Notifier Notifier
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	issuer   *auth.Issuer
	verifier TokenVerifier
	policies Authorizer
	store    cityinfo.Store
	notifier Notifier
	ready    ReadyProbe
	version  string
	logger   *zap.Logger

	defaultPageSize int
	maxPageSize     int
	maxBodyBytes    int64
	rateBurst       int
	ratePerSec      float64
}

// Option tunes an API.
type Option func(*API)

func WithPageSizes(defaultSize, maxSize int) Option {
	return func(a *API) {
		if defaultSize > 0 {
			a.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			a.maxPageSize = maxSize
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithRateLimit bounds the authenticate route per client IP.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(d Deps, opts ...Option) *API {
	a := &API{
		issuer:          d.Issuer,
		verifier:        d.Verifier,
		policies:        d.Policies,
		store:           d.Store,
		notifier:        d.Notifier,
		ready:           d.Ready,
		version:         d.Version,
		logger:          obs.Logger(),
		defaultPageSize: cityinfo.DefaultPageSize,
		maxPageSize:     cityinfo.MaxPageSize,
		maxBodyBytes:    1 << 20,
		rateBurst:       10,
		ratePerSec:      5,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler builds the router. Middleware order: request id, logging, security
// headers, metrics; authentication applies to /api routes only.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, SecurityHeaders, CORS, obs.Instrument)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	limiter := newRateLimiter(a.rateBurst, a.ratePerSec)
	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBodyBytes) })

		r.With(limiter.middleware).Post("/authentication/authenticate", a.authenticate)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Get("/cities", a.listCities)
			r.Get("/cities/{cityId}", a.getCity)

			r.Route("/cities/{cityId}/pointsofinterest", func(r chi.Router) {
				r.Use(a.requirePolicy(auth.PolicyMustBeFromCity))
				r.Get("/", a.listPointsOfInterest)
				r.Post("/", a.createPointOfInterest)
				r.Get("/{id}", a.getPointOfInterest)
				r.Put("/{id}", a.updatePointOfInterest)
				r.Patch("/{id}", a.patchPointOfInterest)
				r.Delete("/{id}", a.deletePointOfInterest)
			})
		})
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "cityinfo-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "cityinfo-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
