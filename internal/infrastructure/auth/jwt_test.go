package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "routeledger/internal/core/context"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	s := NewTokenService("secret", "routeledger", time.Hour)

	token, _, err := s.Issue("office-1", appctx.ScopeSettlement)
	require.NoError(t, err)

	op, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "office-1", op.Subject)
	assert.Equal(t, []string{appctx.ScopeSettlement}, op.Scopes)
}

func TestTokenService_RejectsForeignAndExpiredTokens(t *testing.T) {
	s := NewTokenService("secret", "routeledger", time.Hour)

	other := NewTokenService("other-secret", "routeledger", time.Hour)
	token, _, err := other.Issue("office-1")
	require.NoError(t, err)
	_, err = s.ValidateToken(token)
	assert.Error(t, err)

	wrongIssuer := NewTokenService("secret", "elsewhere", time.Hour)
	token, _, err = wrongIssuer.Issue("office-1")
	require.NoError(t, err)
	_, err = s.ValidateToken(token)
	assert.Error(t, err)

	token, _, err = s.Issue("office-1")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}
