package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

type Deps struct {
	Cart           CartEngine
	Products       ProductService
	Auth           AuthService
	Events         events.CartEvents
	Logger         zerolog.Logger
	Metrics        *metrics.ServerMetrics
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", correlationHeader, causationHeader},
	}).Handler)

	r.Get("/health", healthHandler)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	authn := Authenticate(d.Auth)
	authHandler := NewAuthHandler(d.Auth)
	productHandler := NewProductHandler(d.Products)
	cartHandler := NewCartHandler(d.Cart, d.Events)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(authn)
				r.With(RequireRoles(user.RoleUser, user.RoleAdmin)).Get("/profile", authHandler.Profile)
				r.With(RequireRoles(user.RoleAdmin)).Get("/dashboard", authHandler.Dashboard)
			})
		})

		r.Route("/store/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{id}", productHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(authn, RequireRoles(user.RoleAdmin))
				r.Post("/", productHandler.Create)
				r.Put("/{id}", productHandler.Update)
				r.Delete("/{id}", productHandler.Delete)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(authn, RequireRoles(user.RoleUser))
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.DeleteCart)
			r.Post("/items", cartHandler.AddItem)
			r.Delete("/items/{productId}", cartHandler.RemoveItem)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "storefront-service"})
}
