package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

const minPasswordLength = 8

// AuthService handles proctor registration and login.
type AuthService struct {
	store  repository.Store
	jwtMgr *auth.JWTManager
	cost   int
}

// NewAuthService creates a new AuthService.
func NewAuthService(store repository.Store, jwtMgr *auth.JWTManager) *AuthService {
	return &AuthService{store: store, jwtMgr: jwtMgr, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     string `json:"role,omitempty"`
}

// AuthResult is returned on successful registration or login.
type AuthResult struct {
	Token     string    `json:"token"`
	ProctorID uuid.UUID `json:"proctorId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

// Register creates a proctor account. Self-service sign-up may only
// request the viewer or proctor role.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := domain.NormalizeEmail(input.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return nil, domain.ErrInvalidArgument(err.Error())
	}
	if len(input.Password) < minPasswordLength {
		return nil, domain.ErrInvalidArgument("password must be at least 8 characters")
	}
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, domain.ErrInvalidArgument("full name is required")
	}
	role := input.Role
	if role == "" {
		role = auth.RoleProctor
	}
	if !auth.ValidRole(role) {
		return nil, domain.ErrInvalidArgument("unknown role: " + role)
	}
	if role == auth.RoleAdmin {
		return nil, domain.ErrForbidden("admin accounts cannot be self-registered")
	}

	existing, err := s.store.FindProctorByEmail(ctx, email)
	if err != nil {
		return nil, domain.ErrInternal("find proctor", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	p := &domain.Proctor{
		ID:           uuid.New(),
		Email:        email,
		FullName:     name,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertProctor(ctx, p)
	})
	if errors.Is(err, repository.ErrDuplicateProctorEmail) {
		return nil, domain.ErrConflict("email already registered")
	}
	if err != nil {
		return nil, domain.ErrInternal("create proctor", err)
	}

	return s.issue(p)
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a proctor and returns a JWT.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	p, err := s.store.FindProctorByEmail(ctx, domain.NormalizeEmail(input.Email))
	if err != nil {
		return nil, domain.ErrInternal("find proctor", err)
	}
	if p == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	return s.issue(p)
}

func (s *AuthService) issue(p *domain.Proctor) (*AuthResult, error) {
	token, err := s.jwtMgr.GenerateToken(auth.RealmProctor, p.ID, p.Email, p.Role, "")
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}
	return &AuthResult{Token: token, ProctorID: p.ID, Email: p.Email, Role: p.Role}, nil
}
