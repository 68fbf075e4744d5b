package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
)

const RoleAdmin = "admin"

// Identity is the authenticated requester.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for id. Used by tooling and tests.
func (a *Authenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"name": id.Name,
		"role": id.Role,
		"exp":  a.now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses the token and extracts the identity. The subject is read
// from "sub", falling back to "user_id".
func (a *Authenticator) Verify(raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", errorsx.ErrUnauthorized)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid claims", errorsx.ErrUnauthorized)
	}
	id := Identity{
		UserID: claimString(claims, "sub"),
		Name:   claimString(claims, "name"),
		Role:   claimString(claims, "role"),
	}
	if id.UserID == "" {
		id.UserID = claimString(claims, "user_id")
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", errorsx.ErrUnauthorized)
	}
	return id, nil
}

func claimString(c jwt.MapClaims, key string) string {
	v, _ := c[key].(string)
	return strings.TrimSpace(v)
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
