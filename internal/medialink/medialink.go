// Package medialink signs short-lived URLs that let the transport fetch a
// document without exposing the store layout.
package medialink

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "recibos/pkg/domain-errors"
)

const issuer = "recibos"

// Claims carries the document ref being shared.
type Claims struct {
	Ref        string `json:"ref"`
	DocumentID string `json:"doc"`
	Period     string `json:"period"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 media tokens.
type Signer struct {
	key     []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewSigner(key string, ttl time.Duration, publicBaseURL string) (*Signer, error) {
	if key == "" {
		return nil, errors.New("media signing key is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{
		key:     []byte(key),
		ttl:     ttl,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
	}, nil
}

// Sign returns a token for ref valid for the signer TTL.
func (s *Signer) Sign(ref, documentID, period string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Ref:        ref,
		DocumentID: documentID,
		Period:     period,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign media link: %w", err)
	}
	return signed, nil
}

// URL is Sign rendered as <base>/media/<token>.pdf.
func (s *Signer) URL(ref, documentID, period string) (string, error) {
	token, err := s.Sign(ref, documentID, period)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/media/" + token + ".pdf", nil
}

// Verify accepts a token with or without the ".pdf" suffix.
func (s *Signer) Verify(token string) (*Claims, error) {
	token = strings.TrimSuffix(token, ".pdf")
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.key, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "media link has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid media link")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Ref == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid media link")
	}
	return claims, nil
}
