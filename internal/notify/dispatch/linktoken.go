package dispatch

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "attest/pkg/domain"
)

// LinkSigner mints short-lived signed deep links into the document portal,
// embedded in delivery messages. HS256 with a shared key; the portal side
// verifies with the same key.
type LinkSigner struct {
	key     []byte
	baseURL string
	ttl     time.Duration
}

func NewLinkSigner(key, baseURL string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &LinkSigner{key: []byte(key), baseURL: baseURL, ttl: ttl}
}

type linkClaims struct {
	DocumentID string `json:"doc"`
	TenantID   string `json:"tid"`
	jwt.RegisteredClaims
}

// DocumentLink returns a URL carrying a signed token for the document.
func (s *LinkSigner) DocumentLink(tenantID id.TenantID, documentID id.DocumentID, now time.Time) (string, error) {
	claims := linkClaims{
		DocumentID: documentID.String(),
		TenantID:   tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign document link: %w", err)
	}
	return fmt.Sprintf("%s/documents/%s?token=%s", s.baseURL, documentID, token), nil
}

// VerifyToken parses and validates a link token, returning the document and
// tenant ids it was minted for.
func (s *LinkSigner) VerifyToken(tokenString string) (documentID, tenantID string, err error) {
	var claims linkClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("verify document link: %w", err)
	}
	return claims.DocumentID, claims.TenantID, nil
}
