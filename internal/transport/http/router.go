package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rolegate/rolegate/internal/application/setup"
	"github.com/rolegate/rolegate/internal/application/verification"
	"github.com/rolegate/rolegate/internal/config"
	"github.com/rolegate/rolegate/internal/transport/http/handler"
	appmiddleware "github.com/rolegate/rolegate/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 10 requests/second, burst of 20 — the cheap first tier in front of
	// the store-backed cooldowns.
	webhookRL := appmiddleware.NewRateLimiter(rate.Limit(10), 20)

	limiter := verification.NewRateLimiter(deps.Sessions, cfg.PerGuildCooldown, cfg.GlobalCooldown, nil)
	verifySvc := verification.NewService(verification.Deps{
		Sessions:    deps.Sessions,
		Records:     deps.Records,
		Configs:     deps.Configs,
		Mailer:      deps.Mailer,
		Roles:       deps.Platform,
		SessionTTL:  cfg.SessionTTL,
		MaxAttempts: cfg.MaxAttempts,
		Limiter:     limiter,
	})
	wizardSvc := setup.NewService(setup.Deps{
		Setups:     deps.Setups,
		Configs:    deps.Configs,
		Fetcher:    deps.Platform,
		Poster:     deps.Platform,
		SetupTTL:   cfg.SetupTTL,
		CaptureTTL: cfg.CaptureTTL,
	})

	healthH := handler.NewHealthHandler()
	interactionsH := handler.NewInteractionHandler(verifySvc, wizardSvc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.With(
			webhookRL.Limit,
			appmiddleware.VerifySignature(deps.WebhookPublicKey, nil),
		).Post("/interactions", interactionsH.Handle)
	})

	return r
}
