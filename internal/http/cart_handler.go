package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/events"
)

const requestTimeout = 3 * time.Second

type CartEngine interface {
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID string, in cart.ItemInput) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error)
	DeleteCart(ctx context.Context, userID string) (*cart.Cart, error)
}

type CartHandler struct {
	engine CartEngine
	events events.CartEvents
}

func NewCartHandler(engine CartEngine, publisher events.CartEvents) *CartHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &CartHandler{engine: engine, events: publisher}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.engine.GetCart(ctx, p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body cart.ItemInput
	if !decodeJSON(w, r, &body) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.engine.AddItem(ctx, p.UserID, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.announce(ctx, r, c, h.events.PublishCartUpdated)
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	productID := chi.URLParam(r, "productId")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.engine.RemoveItem(ctx, p.UserID, productID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.announce(ctx, r, c, h.events.PublishCartUpdated)
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.engine.DeleteCart(ctx, p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.announce(ctx, r, c, h.events.PublishCartDeleted)
	writeJSON(w, http.StatusOK, c)
}

type publishFunc func(ctx context.Context, meta events.EventMeta, c *cart.Cart) error

// announce publishes after the cart is already persisted, so a broker failure
// is logged rather than turned into an error response.
func (h *CartHandler) announce(ctx context.Context, r *http.Request, c *cart.Cart, publish publishFunc) {
	if err := publish(ctx, eventMeta(r), c); err != nil {
		zerolog.Ctx(r.Context()).Warn().
			Err(err).
			Str("cart_id", c.ID).
			Msg("failed to publish cart event")
	}
}

func eventMeta(r *http.Request) events.EventMeta {
	correlationID := GetCorrelationID(r.Context())
	if correlationID == "" {
		correlationID = middleware.GetReqID(r.Context())
	}
	return events.EventMeta{
		CorrelationID: correlationID,
		CausationID:   r.Header.Get(causationHeader),
	}
}
