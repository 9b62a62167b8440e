package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
)

// Errors returned by pages
var (
	ErrElementNotFound = errors.New("browser: element not found")
	ErrWaitTimeout     = errors.New("browser: timed out waiting for page")
)

// Page is one browser tab bound to the operation that opened it.
// Implementations are not safe for concurrent use.
type Page interface {
	// Navigate loads url and waits for the document to load
	Navigate(url string) error
	// URL returns the current location
	URL() (string, error)
	// Text returns the visible text of the document body
	Text() (string, error)
	// WaitVisible waits until selector matches a visible element
	WaitVisible(selector string, timeout time.Duration) error
	// Exists reports whether selector matches any element right now
	Exists(selector string) (bool, error)
	// Fill clears the matched input and types value into it
	Fill(selector, value string) error
	// Click clicks the first visible element matched by selector
	Click(selector string) error
	// ClickText clicks the first button or link whose text equals one of
	// texts, trying them in order. Returns the text that was clicked.
	ClickText(texts ...string) (string, error)
	// Anchors returns the links matched by selector
	Anchors(selector string) ([]Anchor, error)
	// Upload sets the files of a file input
	Upload(selector string, paths []string) error
	// SetCookies loads cookies into the session
	SetCookies(cookies []marketplace.SessionCookie) error
	// Cookies returns the cookies of the current page
	Cookies() ([]marketplace.SessionCookie, error)
	// Screenshot captures the full page as PNG
	Screenshot() ([]byte, error)
}

// Anchor is a link found on a page
type Anchor struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Browser runs a function against a fresh page
type Browser interface {
	WithPage(ctx context.Context, fn func(Page) error) error
}

// WaitURL polls the page location until match accepts it or timeout passes.
// The last observed URL is returned in both cases.
func WaitURL(ctx context.Context, p Page, match func(string) bool, timeout, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		u, err := p.URL()
		if err != nil {
			return last, err
		}
		last = u
		if match(u) {
			return u, nil
		}
		if !time.Now().Before(deadline) {
			return last, ErrWaitTimeout
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ContainsAny reports whether text contains any of needles, ignoring case
func ContainsAny(text string, needles ...string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
