package marketplace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMarketplaceAccount(t *testing.T) {
	acc, err := NewMarketplaceAccount(CodeEbay)
	require.NoError(t, err)
	assert.False(t, acc.IsConnected())

	_, err = NewMarketplaceAccount("ETSY")
	assert.ErrorIs(t, err, ErrUnknownMarketplace)
}

func TestMarketplaceAccount_SetTokens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc, _ := NewMarketplaceAccount(CodeEbay)

	assert.ErrorIs(t, acc.SetTokens("", "r", time.Hour, now), ErrAccountInvalidToken)

	require.NoError(t, acc.SetTokens("a1", "r1", 2*time.Hour, now))
	assert.True(t, acc.IsConnected())
	assert.True(t, acc.TokenValid(now, 5*time.Minute))
	assert.False(t, acc.TokenValid(now.Add(2*time.Hour-4*time.Minute), 5*time.Minute))

	// refresh grants without a new refresh token keep the old one
	require.NoError(t, acc.SetTokens("a2", "", time.Hour, now))
	assert.Equal(t, "a2", acc.AccessToken)
	assert.Equal(t, "r1", acc.RefreshToken)
}

func TestParseSessionCookies(t *testing.T) {
	cookies, err := ParseSessionCookies(`[
		{"name":"_csrf","value":"x","domain":".poshmark.com","path":"/"},
		{"name":"","value":"dropped"},
		{"name":"un","value":"closet_queen","domain":".poshmark.com","secure":true}
	]`)
	require.NoError(t, err)
	assert.Len(t, cookies, 2)
	assert.Equal(t, "closet_queen", SessionUsername(cookies))

	encoded, err := EncodeSessionCookies(cookies)
	require.NoError(t, err)
	again, err := ParseSessionCookies(encoded)
	require.NoError(t, err)
	assert.Equal(t, cookies, again)
}

func TestParseSessionCookies_Invalid(t *testing.T) {
	for _, in := range []string{``, `{}`, `[]`, `[{"value":"x"}]`, `not json`} {
		_, err := ParseSessionCookies(in)
		assert.ErrorIs(t, err, ErrInvalidSessionCookies, in)
	}
	assert.Empty(t, SessionUsername([]SessionCookie{{Name: "sid", Value: "1"}}))
}
