package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
	"github.com/avoronel/authd/internal/util"
)

var (
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTokenMalformed       = errors.New("token is malformed")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

// refreshTokenEntropy is the raw byte length of a refresh value before
// base64 encoding.
const refreshTokenEntropy = 64

type TokenService struct {
	jwtSecretKey []byte
	issuer       string
	audience     string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	blacklist    storage.TokenBlacklist
}

func NewTokenService(cfg *util.TokenConfig, blacklist storage.TokenBlacklist) *TokenService {
	return &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		blacklist:    blacklist,
	}
}

// AccessClaims are the signed claims of an access token.
type AccessClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issue mints a token pair for a verified principal: a signed access token
// with a fresh JTI and an opaque refresh value. Pure in everything but
// randomness and the clock; persistence is the caller's job.
func (ts *TokenService) Issue(principal *models.Principal, roles []string, now time.Time) (*models.TokenPair, error) {
	jti := uuid.NewString()
	accessExpiry := now.Add(ts.accessTTL)

	claims := &AccessClaims{
		Email: principal.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principal.ID,
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return nil, fmt.Errorf("signed string: %w", err)
	}

	refreshValue, err := generateRefreshTokenValue()
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		Access: models.AccessToken{
			Value:     signedToken,
			JWTID:     jti,
			ExpiresAt: accessExpiry,
		},
		Refresh: models.RefreshToken{
			Value:     refreshValue,
			ExpiresAt: now.Add(ts.refreshTTL),
		},
	}, nil
}

// RefreshTTL exposes the configured refresh lifetime for record expiry.
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// ValidateAccessToken checks the blacklist first, then signature and expiry,
// and returns the parsed claims.
func (ts *TokenService) ValidateAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	isInvalidated, err := ts.blacklist.IsTokenInvalidated(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check if token is invalidated: %w", err)
	}
	if isInvalidated {
		return nil, ErrTokenRevoked
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if parsedToken == nil || !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// InvalidateAccessToken blacklists a token for its remaining lifetime.
func (ts *TokenService) InvalidateAccessToken(ctx context.Context, accessToken string) error {
	claims, err := ts.getClaimsFromToken(accessToken)
	if err != nil {
		return fmt.Errorf("get claims from token: %w", err)
	}

	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}

	if err := ts.blacklist.InvalidateToken(ctx, accessToken, expiration); err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}
	return nil
}

func (ts *TokenService) getClaimsFromToken(token string) (*AccessClaims, error) {
	parsedToken, _, err := new(jwt.Parser).ParseUnverified(token, &AccessClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || claims.ExpiresAt == nil {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

func generateRefreshTokenValue() (string, error) {
	raw := make([]byte, refreshTokenEntropy)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
