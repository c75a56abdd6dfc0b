// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"coloring-pages/internal/billing"
	"coloring-pages/internal/db"
	"coloring-pages/internal/imagegen"
	"coloring-pages/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stripe/stripe-go/v72"
)

// maxUploadMemory bounds the multipart form kept in memory; larger parts
// spill to temporary files.
const maxUploadMemory = 32 << 20

type ImageHandler interface {
	Handle(ctx context.Context, raw imagegen.RawForm) (*imagegen.Response, error)
}

// ImageLocator maps a public image filename to its on-disk path.
type ImageLocator interface {
	Locate(filename string) (string, error)
}

type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error)
}

type Deps struct {
	Images     ImageHandler
	Files      ImageLocator
	Profiles   db.ProfileStore
	Checkout   *billing.CheckoutBuilder
	Reconciler *billing.Reconciler
	Canceller  *billing.Canceller
	Webhooks   WebhookVerifier

	// PublicURL overrides the request origin in checkout return URLs.
	PublicURL               string
	GrooveSellSecret        string
	GrooveSellAllowUnsigned bool
}

type Server struct {
	server *http.Server
	router chi.Router
	deps   Deps
	logger *logger.Logger
}

func NewServer(port string, deps Deps, logger *logger.Logger) *Server {
	s := &Server{deps: deps, logger: logger}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/images", s.handleImages)
		r.Get("/image/{filename}", s.handleImageFile)

		r.Get("/credit-packages", s.handleCreditPackages)
		r.Get("/profile/{userId}", s.handleProfile)

		r.Route("/stripe", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/checkout", s.handleCheckout)
			r.Post("/webhook", s.handleStripeWebhook)
			r.Post("/cancel-subscription", s.handleCancelSubscription)
		})

		r.Post("/groovesell/webhook", s.handleGrooveSellWebhook)
		r.Get("/groovesell/webhook", s.handleGrooveSellStatus)
	})
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.deps.Profiles.Ping(ctx); err != nil {
		s.logger.Errorw("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
