package routes

import (
	"net/http"
	"time"

	"courier/courier/controllers"
	"courier/courier/middlewares"
	"courier/courier/sources/identity"
	"courier/courier/utils/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth    *controllers.AuthController
	Users   *controllers.UserController
	Health  *controllers.HealthController
	Gateway *controllers.GatewayController
	// Blobs serves GET /files/blobs/*; nil leaves the route out.
	Blobs   BlobReader
	Tokens  *identity.Tokens
	Metrics *metrics.Metrics
	// InsecureOrigins disables the websocket origin check.
	InsecureOrigins bool
	Log             *zap.Logger
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)

	// websockets outlive any request timeout
	r.Mount("/gateway", GatewayRoutes(h.Gateway, h.Tokens, h.InsecureOrigins, h.Log))

	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Timeout(60 * time.Second))
		gr.Mount("/auth", AuthRoutes(h.Auth))
		gr.Mount("/users", UserRoutes(h.Users, h.Tokens))
		gr.Mount("/files", FileRoutes(h.Gateway, h.Blobs, h.Tokens, h.Log))
		gr.Mount("/health", HealthRoutes(h.Health))
		if h.Metrics != nil {
			gr.Handle("/metrics", h.Metrics.Handler())
		}
	})
	return r
}
