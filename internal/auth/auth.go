// Package auth issues and checks the bearer tokens that guard the admin API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
)

const issuer = "feeledger"

var errMissingToken = core.Unauthorizedf("missing bearer token")

// Claims identify an admin session.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for username and its expiry.
func (i *Issuer) Issue(username string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.Unauthorizedf("token expired")
		}
		return nil, core.Unauthorizedf("invalid token")
	}
	if !parsed.Valid || claims.Username == "" {
		return nil, core.Unauthorizedf("invalid token")
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", core.Validationf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Service authenticates admins against the admin store.
type Service struct {
	admins ledger.AdminStore
	tokens *Issuer
}

func NewService(admins ledger.AdminStore, tokens *Issuer) *Service {
	return &Service{admins: admins, tokens: tokens}
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Login checks the credentials. Unknown users and wrong passwords fail the
// same way.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	admin, err := s.admins.FindAdmin(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return Token{}, fmt.Errorf("find admin: %w", err)
	}
	if err != nil || !CheckPassword(admin.PasswordHash, password) {
		logger.WarnContext(ctx, "Rejected admin login", "username", username)
		return Token{}, core.Unauthorizedf("invalid credentials")
	}

	signed, exp, err := s.tokens.Issue(admin.Username)
	if err != nil {
		return Token{}, err
	}
	logger.InfoContext(ctx, "Admin logged in", "username", admin.Username, log.FieldOperation, log.OpLogin)
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// CreateAdmin hashes the password and stores a new admin.
func (s *Service) CreateAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.Validationf("username is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.admins.CreateAdmin(ctx, core.Admin{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
}

func (s *Service) Verify(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}
