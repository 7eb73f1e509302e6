package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidUser = errors.New("invalid user")

const maxPasswordBytes = 72

type Service struct {
	repo     Repository
	hashCost int
	now      func() time.Time
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hashCost: bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser stores a new user with a bcrypt hash of the password. Roles default
// to RoleUser.
func (s *Service) AddUser(ctx context.Context, in NewUser) (User, error) {
	if err := validate(in); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}

	u := User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        strings.ToLower(in.Email),
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.FindByUsername(ctx, username)
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(u User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func validate(in NewUser) error {
	if strings.TrimSpace(in.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: email is invalid", ErrInvalidUser)
	}
	if in.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidUser)
	}
	// bcrypt only hashes the first 72 bytes and refuses longer input.
	if len(in.Password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidUser, maxPasswordBytes)
	}
	for _, r := range in.Roles {
		if !r.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidUser, r)
		}
	}
	return nil
}
