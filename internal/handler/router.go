package handler

import (
	"net/http"
	"time"

	"cleansight/internal/container"
	"cleansight/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Version is reported by /health
const Version = "1.0.0"

// NewRouter wires every endpoint onto a chi router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	sessionConfig := middleware.SessionConfig{
		CookieSecure:     cfg.CookieSecure,
		CookieTTL:        cfg.SessionTTL,
		BootstrapTimeout: cfg.BootstrapTimeout,
	}
	loadSession := middleware.Session(c.Sessions, c.Tokens, sessionConfig, log)
	pageGuard := middleware.PageGuard(log)

	r := chi.NewRouter()
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.StripSlashes)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := NewHealthHandler(c.HealthChecks(), Version, log)
	authHandler := NewAuthHandler(c.Tokens, sessionConfig, log)
	federatedHandler := NewFederatedHandler(c.Identity, c.PendingRoles, cfg.FrontendURL, log)
	profileHandler := NewProfileHandler(log)
	routeHandler := NewRouteHandler(log)

	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(loadSession)

			r.Get("/session", authHandler.GetSession)
			r.Post("/auth/signin", authHandler.SignIn)
			r.Post("/auth/signup", authHandler.SignUp)
			r.Post("/auth/signout", authHandler.SignOut)
			r.Post("/auth/register/federated", federatedHandler.Register)

			r.Patch("/profile", profileHandler.Update)
			r.Post("/onboarding/address", profileHandler.SubmitOnboarding)

			r.Get("/routes/resolve", routeHandler.Resolve)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			routeHandler.NotFound(w, r)
		})
	})

	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Use(loadSession)
		r.Get("/start", federatedHandler.Start)
		r.Get("/callback", federatedHandler.Callback)
	})

	r.Group(func(r chi.Router) {
		r.Use(loadSession, pageGuard)
		routeHandler.MountPages(r)
	})

	// unknown pages still go through the guard so onboarding and placeholders apply
	r.NotFound(loadSession(pageGuard(http.HandlerFunc(routeHandler.NotFound))).ServeHTTP)

	log.Info("Router configured successfully")
	return r
}
