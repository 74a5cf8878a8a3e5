package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/levelup-hq/levelup/internal/models"
)

// StaticAuth resolves bearer tokens against a fixed token-to-user table loaded
// from configuration. It stands in for the hosted auth provider, which owns
// sign-up, session cookies, and role assignment.
type StaticAuth struct {
	users map[string]models.User
}

// NewStaticAuth creates a StaticAuth from a token-to-user mapping.
func NewStaticAuth(users map[string]models.User) StaticAuth {
	return StaticAuth{users: users}
}

// Authenticate extracts the bearer token from the request and resolves it to a
// user. Unknown or missing tokens yield an error.
func (a StaticAuth) Authenticate(r *http.Request) (models.User, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return models.User{}, errors.New("missing bearer token")
	}

	user, ok := a.users[token]
	if !ok {
		return models.User{}, errors.New("unknown token")
	}
	return user, nil
}
