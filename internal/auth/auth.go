package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
)

// Claims is the staff token body.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	TokenID    string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Revoker remembers logged-out token ids. Nil means tokens live until expiry.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Service struct {
	employees store.EmployeeStore
	secret    []byte
	ttl       time.Duration
	clock     clock.Clock
	revoker   Revoker
	log       *zap.Logger
}

type Options struct {
	Secret  string
	TTL     time.Duration
	Clock   clock.Clock
	Revoker Revoker
	Logger  *zap.Logger
}

func NewService(employees store.EmployeeStore, options Options) *Service {
	ttl := options.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:       log,
		employees: employees,
		secret:    []byte(options.Secret),
		ttl:       ttl,
		clock:     clk,
		revoker:   options.Revoker,
	}
}

// Login checks the password of an active employee and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, Identity, error) {
	employee, err := s.employees.GetEmployeeByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrEmployeeNotFound) {
			return "", Identity{}, ErrInvalidCredentials
		}
		return "", Identity{}, err
	}
	if !employee.Active {
		return "", Identity{}, ErrInvalidCredentials
	}
	if err := CheckPassword(employee.PasswordHash, password); err != nil {
		return "", Identity{}, ErrInvalidCredentials
	}
	return s.Issue(employee)
}

func (s *Service) Issue(employee models.Employee) (string, Identity, error) {
	now := s.clock.Now()
	identity := Identity{
		EmployeeID: employee.EmployeeID,
		Name:       employee.Name,
		Role:       employee.Role,
		TokenID:    uuid.NewString(),
		ExpiresAt:  now.Add(s.ttl).UTC().Truncate(time.Second),
	}
	claims := Claims{
		Name: identity.Name,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.TokenID,
			Subject:   identity.EmployeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign token: %w", err)
	}
	return token, identity, nil
}

// Verify checks signature, expiry against the service clock and revocation.
// An unreachable revocation store does not lock staff out; the token is
// accepted and a warning is logged.
func (s *Service) Verify(ctx context.Context, token string) (Identity, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(s.clock.Now(), true) || claims.Subject == "" || claims.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleStaff {
		return Identity{}, ErrInvalidToken
	}

	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.log.Warn("token revocation lookup failed", zap.String("employee_id", claims.Subject), zap.Error(err))
		}
		if err == nil && revoked {
			return Identity{}, ErrTokenRevoked
		}
	}

	return Identity{
		EmployeeID: claims.Subject,
		Name:       claims.Name,
		Role:       claims.Role,
		TokenID:    claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the token for the rest of its lifetime. Without a revoker it
// is a no-op and the token stays valid until it expires.
func (s *Service) Logout(ctx context.Context, identity Identity) error {
	if s.revoker == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, identity.TokenID, identity.ExpiresAt.Sub(s.clock.Now()))
}

// EnsureBootstrapAdmin creates the configured admin account on first start.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	return s.employees.EnsureEmployee(ctx, models.Employee{
		Username:     username,
		Name:         username,
		Role:         models.RoleAdmin,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    s.clock.Now().UTC(),
	})
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
