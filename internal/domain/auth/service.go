package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/domain/credit"
	"github.com/creditswap/creditswap-api/internal/domain/user"
	"github.com/creditswap/creditswap-api/internal/pkg/database"
	"github.com/creditswap/creditswap-api/internal/pkg/jwt"
	"github.com/creditswap/creditswap-api/internal/pkg/password"
)

// Ledger grants the signup bonus.
type Ledger interface {
	Grant(ctx context.Context, userID uuid.UUID, amount int, typ credit.Type, meta credit.Meta) (*credit.Transaction, error)
}

// Service handles authentication business logic
type Service struct {
	userRepo      user.Repository
	ledger        Ledger
	tx            database.Transactor
	jwtService    *jwt.Service
	signupCredits int
}

// NewService creates auth service
func NewService(userRepo user.Repository, ledger Ledger, tx database.Transactor, jwtService *jwt.Service, signupCredits int) *Service {
	return &Service{
		userRepo:      userRepo,
		ledger:        ledger,
		tx:            tx,
		jwtService:    jwtService,
		signupCredits: signupCredits,
	}
}

// Register creates the account and grants the signup credits in one
// transaction, so a new balance always has a matching ledger entry.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)

	// 1. Check if email exists
	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, user.ErrEmailAlreadyExists
	}

	// 2. Hash password
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	// 3. Create user and grant signup credits
	u := &user.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         user.RoleMember,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Create(ctx, u); err != nil {
			return err
		}
		if s.signupCredits <= 0 {
			return nil
		}
		_, err := s.ledger.Grant(ctx, u.ID, s.signupCredits, credit.TypeSignupBonus, credit.Meta{
			RelatedEntityType: "user",
			RelatedEntityID:   u.ID,
			Description:       "Signup bonus",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.signupCredits > 0 {
		u.Credits = s.signupCredits
	}

	log.Info().
		Str("user_id", u.ID.String()).
		Int("credits", u.Credits).
		Msg("User registered")

	// 4. Generate token
	return s.generateToken(u)
}

// Login authenticates user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)

	// 1. Find user
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Verify password
	if err := password.Verify(u.PasswordHash, req.Password); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// 3. Generate token
	return s.generateToken(u)
}

// GetCurrentUser returns current user by ID
func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	resp := NewUserResponse(u)
	return &resp, nil
}

func (s *Service) generateToken(u *user.User) (*AuthResponse, error) {
	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User: NewUserResponse(u),
		Tokens: TokensResponse{
			AccessToken: accessToken,
			ExpiresIn:   int(s.jwtService.AccessTTL().Seconds()),
			ExpiresAt:   expiresAt.Format(time.RFC3339),
			TokenType:   "Bearer",
		},
	}, nil
}
