package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pharmakart/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler

	orders     RouteRegistrar
	products   RouteRegistrar
	pharmacies RouteRegistrar
	financial  RouteRegistrar
	admin      RouteRegistrar
	internal   RouteRegistrar

	financialMiddlewares []func(http.Handler) http.Handler
	adminMiddlewares     []func(http.Handler) http.Handler
	internalMiddlewares  []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/v2"
	defaultTimeout   = 60 * time.Second
)

// NewRouter constructs the chi router with shared middleware and the expected
// route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}
	if cfg.metrics == nil {
		cfg.metrics = promhttp.Handler()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("ROUTE_NOT_FOUND", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("METHOD_NOT_ALLOWED", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	r.Method(http.MethodGet, "/metrics", cfg.metrics)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				group.HandleFunc("/*", notImplemented)
			})
		}

		mount("/orders", cfg.orders, nil)
		mount("/products", cfg.products, nil)
		mount("/pharmacies", cfg.pharmacies, nil)
		mount("/financial", cfg.financial, cfg.financialMiddlewares)
		mount("/admin", cfg.admin, cfg.adminMiddlewares)
		mount("/internal", cfg.internal, cfg.internalMiddlewares)
	})

	return r
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("NOT_IMPLEMENTED", fmt.Sprintf("no handler mounted for %s", r.URL.Path), http.StatusNotImplemented))
}

// WithBasePath overrides the default /v2 API prefix.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the default health handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		if h != nil {
			cfg.health = h
		}
	}
}

// WithMetricsHandler overrides the default Prometheus metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		if h != nil {
			cfg.metrics = h
		}
	}
}

// WithOrderRoutes mounts the /orders group.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = registrar
	}
}

// WithProductRoutes mounts the /products group.
func WithProductRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products = registrar
	}
}

// WithPharmacyRoutes mounts the /pharmacies group.
func WithPharmacyRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.pharmacies = registrar
	}
}

// WithFinancialRoutes mounts the /financial group with optional group middleware.
func WithFinancialRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.financial = registrar
		cfg.financialMiddlewares = mw
	}
}

// WithAdminRoutes mounts the /admin group with optional group middleware.
func WithAdminRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.admin = registrar
		cfg.adminMiddlewares = mw
	}
}

// WithInternalRoutes mounts the /internal group with optional group middleware.
func WithInternalRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal = registrar
		cfg.internalMiddlewares = mw
	}
}
