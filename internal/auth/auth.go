package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/reelforge/internal/pkg/ctxutil"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
Service is the thin façade authentication capability the HTTP layer's
AuthMiddleware depends on: a bearer token in, a request-scoped user
identity out. A minimal JWT verifier is enough since this domain's auth
surface is a single owning user per project rather than a full account
system.
*/
type Service interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueToken(userID uuid.UUID, ttl time.Duration) (string, error)
}

type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

type service struct {
	log    *logger.Logger
	secret []byte
}

func New(log *logger.Logger) (Service, error) {
	secret := os.Getenv("JWT_SIGNING_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("missing env var JWT_SIGNING_SECRET")
	}
	return &service{log: log.With("service", "auth.Service"), secret: []byte(secret)}, nil
}

func (s *service) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("userID required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

func (s *service) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, fmt.Errorf("empty token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return ctx, fmt.Errorf("parse token: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return ctx, fmt.Errorf("invalid token")
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return ctx, fmt.Errorf("invalid user id in token: %w", err)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID}), nil
}
