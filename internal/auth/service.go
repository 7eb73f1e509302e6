package auth

import (
	"context"
	"errors"
	"time"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	AddUser(ctx context.Context, in user.NewUser) (user.User, error)
	FindByUsername(ctx context.Context, username string) (user.User, error)
}

type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        user.User `json:"user"`
}

type Service struct {
	users              UserStore
	tokens             *TokenMaker
	allowRoleSelection bool
}

// NewService wires registration and login. Unless allowRoleSelection is set,
// self-registered accounts always get the user role.
func NewService(users UserStore, tokens *TokenMaker, allowRoleSelection bool) *Service {
	return &Service{users: users, tokens: tokens, allowRoleSelection: allowRoleSelection}
}

func (s *Service) Register(ctx context.Context, in user.NewUser) (user.User, error) {
	if !s.allowRoleSelection {
		in.Roles = nil
	}
	return s.users.AddUser(ctx, in)
}

func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.CheckPassword(u, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.CreateToken(u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

func (s *Service) Verify(token string) (Principal, error) {
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return Principal{}, err
	}
	return PrincipalFromClaims(claims), nil
}
