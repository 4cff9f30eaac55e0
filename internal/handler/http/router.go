package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// RouterConfig carries the optional router knobs.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	RateLimitRPS   float64
	RateLimitBurst int
	IPLimitRPS     float64
	IPLimitBurst   int
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	sessions *session.Manager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Metrics())
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	h := NewStorefrontHandler(sessions, logger)
	r.Route("/api/v1/storefront", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.RateLimitByIP(cfg.IPLimitRPS, cfg.IPLimitBurst, logger))
		r.Use(middleware.RequireDeviceID())
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		r.Use(middleware.NoStore())
		Routes(r, h)
	})

	return r
}

// Routes registers the storefront endpoints on r.
func Routes(r chi.Router, h *StorefrontHandler) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddToCart)
		r.Get("/items/{id}", h.GetCartItem)
		r.Delete("/items/{id}", h.RemoveFromCart)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.GetSubscriptions)
		r.Put("/", h.SaveSubscription)
		r.Delete("/", h.ClearSubscriptions)
		r.Delete("/{productId}", h.RemoveSubscription)
	})

	r.Route("/wishlist", func(r chi.Router) {
		r.Get("/", h.GetWishlist)
		r.Delete("/", h.ClearWishlist)
		r.Post("/toggle", h.ToggleWishlist)
		r.Post("/sync", h.SyncWishlist)
		r.Get("/{id}", h.InWishlist)
		r.Delete("/{id}", h.RemoveFromWishlist)
	})

	r.Route("/branch", func(r chi.Router) {
		r.Get("/", h.GetBranch)
		r.Put("/", h.SetBranch)
		r.Delete("/", h.ClearBranch)
		r.Post("/gps", h.RequestGPS)
		r.Post("/pincode", h.FetchBranchByPincode)
		r.Post("/coordinates", h.FetchBranchByCoordinates)
		r.Post("/default", h.FetchDefaultBranch)
		r.Post("/settings", h.OpenLocationSettings)
	})

	r.Route("/toast", func(r chi.Router) {
		r.Get("/", h.GetToast)
		r.Delete("/", h.HideToast)
	})
}
