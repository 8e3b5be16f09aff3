package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const tokenTTL = 24 * time.Hour

// Claims is what a session access token asserts.
type Claims struct {
	SessionID string
	UserID    string
	Username  string
}

func withClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the verified token claims attached by the auth
// middleware, if any.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}

// tokenIssuer signs and verifies session access tokens. The signing key is
// generated per server instance; tokens do not survive a restart.
type tokenIssuer struct {
	key []byte
}

func newTokenIssuer() *tokenIssuer {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &tokenIssuer{key: key}
}

func (t *tokenIssuer) Issue(sessionID, userID, username string) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid":  sessionID,
		"sub":  userID,
		"name": username,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	})
	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *tokenIssuer) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	str := func(k string) string {
		v, _ := mc[k].(string)
		return v
	}
	c := Claims{SessionID: str("sid"), UserID: str("sub"), Username: str("name")}
	if c.SessionID == "" || c.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}
