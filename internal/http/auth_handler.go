package httpapi

import (
	"context"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

type AuthService interface {
	TokenVerifier
	Register(ctx context.Context, in user.NewUser) (user.User, error)
	Login(ctx context.Context, username, password string) (auth.LoginResult, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in user.NewUser
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := h.svc.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.svc.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Profile and Dashboard echo the caller; the router decides who may reach them.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.Profile(w, r)
}
