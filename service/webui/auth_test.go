// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testUsers(t *testing.T) []User {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	return []User{
		{Username: "op1", PasswordHash: hash, Role: roleOperator},
		{Username: "eng1", PasswordHash: hash, Role: roleEngineer},
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	a := newAuthenticator("test-signing-key", time.Minute, testUsers(t))

	token, r, err := a.login("op1", "s3cret")
	require.NoError(t, err)
	require.Equal(t, roleOperator, r)

	c, err := a.verify(token)
	require.NoError(t, err)
	require.Equal(t, "op1", c.Username)
	require.Equal(t, roleOperator, c.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	a := newAuthenticator("test-signing-key", time.Minute, testUsers(t))
	_, _, err := a.login("op1", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	a := newAuthenticator("test-signing-key", time.Minute, testUsers(t))
	_, _, err := a.login("nope", "s3cret")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsTokenSignedWithDifferentKey(t *testing.T) {
	a1 := newAuthenticator("key-one", time.Minute, testUsers(t))
	a2 := newAuthenticator("key-two", time.Minute, testUsers(t))

	token, _, err := a1.login("op1", "s3cret")
	require.NoError(t, err)

	_, err = a2.verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	a := newAuthenticator("test-signing-key", -time.Second, testUsers(t))
	token, _, err := a.login("op1", "s3cret")
	require.NoError(t, err)

	_, err = a.verify(token)
	require.Error(t, err)
}

func TestRefreshIssuesNewTokenForKnownUser(t *testing.T) {
	a := newAuthenticator("test-signing-key", time.Minute, testUsers(t))
	token, err := a.refresh("eng1")
	require.NoError(t, err)

	c, err := a.verify(token)
	require.NoError(t, err)
	require.Equal(t, roleEngineer, c.Role)
}

func TestRolePermissionsDistinguishOperatorFromEngineer(t *testing.T) {
	require.False(t, roleOperator.allows("tags:write"))
	require.True(t, roleOperator.allows("services:command"))
	require.False(t, roleOperator.allows("alarms:clear"))
	require.True(t, roleEngineer.allows("tags:write"))
	require.True(t, roleEngineer.allows("alarms:clear"))
	require.True(t, roleEngineer.allows("config:read"))
	require.False(t, roleEngineer.allows("config:write"))
	require.False(t, roleEngineer.allows("users:manage"))
	require.True(t, roleAdmin.allows("config:write"))
	require.True(t, roleAdmin.allows("users:manage"))
}
