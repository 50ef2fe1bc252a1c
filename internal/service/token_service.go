package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/identity"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/repository"
)

// TokenVerifier resolves a session token to a user ID. Both the REST
// middleware and the event stream authenticate through it.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

var _ TokenVerifier = (*TokenService)(nil)

// TokenService is the trusted issuing authority: it registers identities on
// first use and signs session tokens for them.
type TokenService struct {
	userRepo repository.UserRepository
	secret   []byte
	issuer   string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokenService(userRepo repository.UserRepository, secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		userRepo: userRepo,
		secret:   []byte(secret),
		issuer:   issuer,
		ttl:      ttl,
		now:      time.Now,
	}
}

type TokenResponse struct {
	Token string `json:"token"`
}

// Issue canonicalizes rawUserID, makes sure the user exists and returns a
// signed token for it.
func (s *TokenService) Issue(ctx context.Context, rawUserID string) (string, *domain.User, error) {
	id := identity.Canonicalize(rawUserID)
	if id == "" {
		return "", nil, ErrMissingUserID
	}

	user, err := s.userRepo.Upsert(ctx, &domain.User{
		ID:        id,
		Name:      id,
		Image:     identity.AvatarURL(id),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", nil, fmt.Errorf("upserting user: %w", err)
	}

	token, err := s.sign(id)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}

	metrics.TokensIssued.Inc()
	return token, user, nil
}

// Verify checks signature, issuer and expiry and returns the user ID.
func (s *TokenService) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || !identity.IsCanonical(sub) {
		return "", ErrInvalidToken
	}
	return sub, nil
}

func (s *TokenService) sign(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
