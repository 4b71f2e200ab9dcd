package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const serviceTokenIssuer = "mcpbridge"

var ErrServiceTokenFailed = errors.New("failed to sign service token")

// ServiceTokenIssuer signs short-lived HS256 tokens the server presents to
// its own RPC bridge and to the cloud bridge on behalf of a user
type ServiceTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewServiceTokenIssuer creates an issuer. An empty secret is replaced by a
// random one, which is only useful when the receiving side does not verify.
func NewServiceTokenIssuer(secret string, ttl time.Duration) *ServiceTokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ServiceTokenIssuer{secret: key, ttl: ttl, now: time.Now}
}

// Issue returns a signed token whose subject is userID
func (i *ServiceTokenIssuer) Issue(userID string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    serviceTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceTokenFailed, err)
	}
	return signed, nil
}
