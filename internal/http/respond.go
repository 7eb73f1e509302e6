package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/product"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, product.ErrInvalidProduct),
		errors.Is(err, user.ErrInvalidUser):
		status = http.StatusBadRequest
	case errors.Is(err, cart.ErrConflict),
		errors.Is(err, user.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}
