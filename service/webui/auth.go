// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials indicates a login attempt's username or password
// did not match a configured account.
var ErrInvalidCredentials = errors.New("webui: invalid credentials")

// ErrForbidden indicates an authenticated user's role lacks the
// permission a handler requires.
var ErrForbidden = errors.New("webui: forbidden")

// permission is a "resource:action" string by convention, e.g.
// "services:command" or "tags:write".
type permission string

// rolePermissions is the fixed per-role permission table. operator can
// observe, command services, and acknowledge alarms but not write tags;
// engineer additionally writes tags and manages configuration-adjacent
// actions (alarm clearing/shelving, reading configuration); admin has
// unrestricted access. This mirrors how packml.Command validity is a
// fixed table rather than per-service configuration.
var rolePermissions = map[role]map[permission]bool{
	roleOperator: {
		"tags:read": true,
		"services:read": true, "services:command": true,
		"alarms:read": true, "alarms:ack": true,
		"history:read": true,
	},
	roleEngineer: {
		"tags:read": true, "tags:write": true,
		"services:read": true, "services:command": true,
		"alarms:read": true, "alarms:ack": true, "alarms:clear": true, "alarms:shelve": true,
		"history:read": true,
		"config:read": true,
	},
	roleAdmin: {
		"tags:read": true, "tags:write": true,
		"services:read": true, "services:command": true,
		"alarms:read": true, "alarms:ack": true, "alarms:clear": true, "alarms:shelve": true,
		"history:read": true,
		"config:read": true, "config:write": true,
		"users:manage": true,
	},
}

func (r role) allows(p permission) bool {
	return rolePermissions[r][p]
}

// claims is the JWT payload this package issues and verifies.
type claims struct {
	Username string `json:"username"`
	Role     role   `json:"role"`
	jwt.RegisteredClaims
}

// authenticator issues and verifies session tokens against the
// statically configured account list.
type authenticator struct {
	signingKey []byte
	expiry     time.Duration
	users      map[string]User
}

func newAuthenticator(signingKey string, expiry time.Duration, users []User) *authenticator {
	byName := make(map[string]User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	return &authenticator{signingKey: []byte(signingKey), expiry: expiry, users: byName}
}

// login verifies username/password against the configured bcrypt hash and
// returns a signed token plus the matched user's role.
func (a *authenticator) login(username, password string) (token string, r role, err error) {
	u, ok := a.users[username]
	if !ok {
		return "", "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}
	tok, err := a.issue(u)
	if err != nil {
		return "", "", err
	}
	return tok, u.Role, nil
}

func (a *authenticator) issue(u User) (string, error) {
	now := time.Now().UTC()
	c := claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(a.signingKey)
}

// verify parses and validates a bearer token, returning its claims.
func (a *authenticator) verify(tokenStr string) (*claims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("webui: unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

// refresh issues a new token for an already-authenticated user, extending
// the session without requiring the password again.
func (a *authenticator) refresh(username string) (string, error) {
	u, ok := a.users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	return a.issue(u)
}

// HashPassword bcrypt-hashes a plaintext password for storage in a user
// configuration entry.
func HashPassword(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("webui: hash password: %w", err)
	}
	return string(h), nil
}
