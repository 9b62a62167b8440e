package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/marketplace"
)

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `'List Item'`, xpathLiteral("List Item"))
	assert.Equal(t, `"Don't"`, xpathLiteral("Don't"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, xpathLiteral(`a'b"c`))
}

func TestTextXPath(t *testing.T) {
	xp := textXPath(" Next ")
	assert.Contains(t, xp, `//button[normalize-space(.)='Next']`)
	assert.Contains(t, xp, `//a[normalize-space(.)='Next']`)
}

func TestToCookieParams(t *testing.T) {
	params := toCookieParams([]marketplace.SessionCookie{
		{Name: "jwt", Value: "abc", Domain: ".poshmark.com", Expires: 1767225600.5, SameSite: "Lax", Secure: true},
		{Name: "", Value: "dropped"},
		{Name: "un", Value: "closet_queen", Path: "/x", SameSite: "no_restriction"},
	})
	require.Len(t, params, 2)

	assert.Equal(t, "/", params[0].Path)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1767225600), time.Time(*params[0].Expires).Unix())
	assert.True(t, params[0].Secure)

	assert.Equal(t, "/x", params[1].Path)
	assert.Equal(t, network.CookieSameSiteNone, params[1].SameSite)
	assert.Nil(t, params[1].Expires)
}

func TestFromNetworkCookies(t *testing.T) {
	out := fromNetworkCookies([]*network.Cookie{
		{Name: "jwt", Value: "abc", Domain: ".poshmark.com", Path: "/", Expires: 1767225600, HTTPOnly: true, SameSite: network.CookieSameSiteStrict},
		{Name: "session", Value: "s", Expires: -1},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Strict", out[0].SameSite)
	assert.Equal(t, float64(1767225600), out[0].Expires)
	assert.True(t, out[0].HTTPOnly)
	assert.Zero(t, out[1].Expires)
}

func TestNewChromedp_Defaults(t *testing.T) {
	c := NewChromedp(&ChromedpConfig{Headless: true, NoSandbox: true})
	defer c.Close()

	assert.Equal(t, defaultSessionTimeout, c.config.SessionTimeout)
	assert.Equal(t, defaultStepTimeout, c.config.StepTimeout)
	assert.NotEmpty(t, c.config.UserAgent)
	assert.NotNil(t, c.allocCtx)
}
