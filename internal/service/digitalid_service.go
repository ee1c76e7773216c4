package service

import (
	"strconv"
	"time"

	"alumnet/internal/config"
	"alumnet/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const digitalIDTokenType = "qr_digital_id"

// DigitalIDService issues and verifies short-lived signed tokens for the
// "show my digital ID" flow. The tokens share the platform's user identity
// space but are not session credentials: they carry a dedicated type claim
// and are signed with a separate key, so a digital ID can never be replayed
// as a bearer token and vice versa.
type DigitalIDService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDigitalIDService returns a DigitalIDService configured from cfg.
func NewDigitalIDService(cfg *config.Config) *DigitalIDService {
	return &DigitalIDService{
		secret: []byte(cfg.DigitalIDKey()),
		ttl:    cfg.DigitalIDTTL(),
		now:    time.Now,
	}
}

// Issue creates a signed token identifying userID, valid for the configured
// TTL.
func (s *DigitalIDService) Issue(userID uint) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"type": digitalIDTokenType,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, models.NewInternalError(err)
	}
	return signed, expiresAt, nil
}

// Verify checks the token signature, expiry and type claim and returns the
// user it identifies.
func (s *DigitalIDService) Verify(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.NewUnauthorizedError("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return 0, models.NewUnauthorizedError("invalid or expired digital ID token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, models.NewUnauthorizedError("invalid token claims")
	}
	if typ, _ := claims["type"].(string); typ != digitalIDTokenType {
		return 0, models.NewUnauthorizedError("not a digital ID token")
	}

	subStr, ok := claims["sub"].(string)
	if !ok {
		return 0, models.NewUnauthorizedError("invalid token subject")
	}
	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return 0, models.NewUnauthorizedError("invalid user ID in token")
	}
	return uint(userID), nil
}
