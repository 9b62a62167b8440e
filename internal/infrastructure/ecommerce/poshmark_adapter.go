package ecommerce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/browser"
	"github.com/crosslist/backend/internal/infrastructure/logger"
)

// Page selectors and button labels used by the Poshmark flows
const (
	poshSelLoggedIn      = `.header-user-profile, a[href*="/user/"]`
	poshSelLoginUser     = `input[name*="username_email"]`
	poshSelLoginPassword = `input[type="password"]`
	poshSelLoginSubmit   = `button[type="submit"]`
	poshSelFileInput     = `input[type="file"]`
	poshSelTitle         = `input[name*="title" i], input[placeholder*="title" i]`
	poshSelDescription   = `textarea[name*="description" i]`
	poshSelOriginalPrice = `input[name*="original" i], input[placeholder*="Original Price" i]`
	poshSelListingPrice  = `input[name="current_price"], input[data-testid="price-input"], input[placeholder*="Listing Price" i]`
	poshSelSoldBadge     = `.sold-tag, .sold-out-tag, [data-test*="sold" i]`
	poshSelClosetTiles   = `.tile a[href*="/listing/"], .card a[href*="/listing/"]`

	poshBotChallengeText = "Pardon the interruption"
)

var (
	poshPublishLabels = []string{"List Item", "Next", "Publish"}
	poshConfirmLabels = []string{"List This Item", "List Item", "Publish"}

	poshNotFoundTexts = []string{
		"this listing is no longer available",
		"listing not found",
		"page not found",
		"the page you're looking for",
	}

	// poshListingURL matches /listing/<slug>-<id>
	poshListingURL = regexp.MustCompile(`/listing/(?:[^/?#]*-)?([0-9a-fA-F]{6,})(?:[/?#]|$)`)
)

// ArtifactStore keeps debugging artifacts such as failure screenshots
type ArtifactStore interface {
	PutObject(ctx context.Context, storageKey, contentType string, body io.Reader, size int64) error
}

// PoshmarkAdapter implements marketplace.Adapter by driving poshmark.com
// in a browser. Failures are never reported as transient.
type PoshmarkAdapter struct {
	config    *PoshmarkConfig
	browser   browser.Browser
	accounts  marketplace.AccountRepository
	images    marketplace.ImageSource
	artifacts ArtifactStore
	logger    *zap.Logger
	now       func() time.Time
}

// PoshmarkAdapterOption configures a PoshmarkAdapter
type PoshmarkAdapterOption func(*PoshmarkAdapter)

// WithPoshmarkImageSource sets where listing photos are read from
func WithPoshmarkImageSource(s marketplace.ImageSource) PoshmarkAdapterOption {
	return func(a *PoshmarkAdapter) { a.images = s }
}

// WithPoshmarkArtifacts sets where failure screenshots are stored
func WithPoshmarkArtifacts(s ArtifactStore) PoshmarkAdapterOption {
	return func(a *PoshmarkAdapter) { a.artifacts = s }
}

// WithPoshmarkLogger sets the logger
func WithPoshmarkLogger(l *zap.Logger) PoshmarkAdapterOption {
	return func(a *PoshmarkAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPoshmarkClock sets the clock
func WithPoshmarkClock(now func() time.Time) PoshmarkAdapterOption {
	return func(a *PoshmarkAdapter) { a.now = now }
}

// NewPoshmarkAdapter creates a Poshmark adapter running on b
func NewPoshmarkAdapter(config *PoshmarkConfig, b browser.Browser, accounts marketplace.AccountRepository, opts ...PoshmarkAdapterOption) (*PoshmarkAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("poshmark: browser is required")
	}
	a := &PoshmarkAdapter{
		config:   config,
		browser:  b,
		accounts: accounts,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Marketplace(string(marketplace.CodePoshmark)))
	return a, nil
}

// Marketplace implements marketplace.Adapter
func (a *PoshmarkAdapter) Marketplace() marketplace.Code { return marketplace.CodePoshmark }

// Mechanism implements marketplace.Adapter
func (a *PoshmarkAdapter) Mechanism() marketplace.Mechanism { return marketplace.MechanismBrowser }

// CreateListing fills and submits the create-listing form
func (a *PoshmarkAdapter) CreateListing(ctx context.Context, item *marketplace.InventoryItem) marketplace.SyncResult {
	return a.run(ctx, "create", func(s *poshSession) marketplace.SyncResult {
		if serr := s.open(a.config.BaseURL + "/create-listing"); serr != nil {
			return marketplace.Failed(serr)
		}
		if serr := s.waitFor(poshSelFileInput); serr != nil {
			return marketplace.Failed(serr)
		}

		paths, cleanup, serr := a.materializeImages(ctx, item)
		if serr != nil {
			return marketplace.Failed(serr)
		}
		defer cleanup()
		if err := s.page.Upload(poshSelFileInput, paths); err != nil {
			return marketplace.Failed(s.mismatch("image upload failed: %v", err))
		}

		if serr := s.fillItem(item); serr != nil {
			return marketplace.Failed(serr)
		}

		clicked, err := s.page.ClickText(poshPublishLabels...)
		if err != nil {
			return marketplace.Failed(s.mismatch("publish button not found: %v", err))
		}
		u, err := browser.WaitURL(ctx, s.page, isListingURL, a.config.NavigationTimeout, a.config.PollInterval)
		if err != nil && clicked == "Next" {
			if _, cerr := s.page.ClickText(poshConfirmLabels...); cerr == nil {
				u, err = browser.WaitURL(ctx, s.page, isListingURL, a.config.NavigationTimeout, a.config.PollInterval)
			}
		}
		if err != nil {
			if serr := s.checkChallenge(); serr != nil {
				return marketplace.Failed(serr)
			}
			return marketplace.Failed(s.mismatch("publish did not reach a listing page (url %s)", u))
		}

		id := listingIDFromURL(u)
		if id == "" {
			return marketplace.Failed(s.mismatch("could not read listing id from %s", u))
		}
		a.logger.Info("Poshmark listing published", zap.String("listing_id", id), zap.Int("images", len(paths)))
		return marketplace.Succeeded(marketplace.RemoteRef{ID: id, URL: stripQuery(u)})
	})
}

// UpdateListing refills the edit form of an existing listing
func (a *PoshmarkAdapter) UpdateListing(ctx context.Context, ref marketplace.RemoteRef, item *marketplace.InventoryItem) marketplace.SyncResult {
	return a.run(ctx, "update", func(s *poshSession) marketplace.SyncResult {
		if serr := s.open(a.editURL(ref)); serr != nil {
			return marketplace.Failed(serr)
		}
		if s.notFound() {
			return marketplace.Failed(marketplace.NotFound("poshmark listing %s is gone", ref.ID))
		}
		if serr := s.waitFor(poshSelTitle); serr != nil {
			return marketplace.Failed(serr)
		}
		if serr := s.fillItem(item); serr != nil {
			return marketplace.Failed(serr)
		}
		if _, err := s.page.ClickText("Update"); err != nil {
			return marketplace.Failed(s.mismatch("update button not found: %v", err))
		}
		if _, err := browser.WaitURL(ctx, s.page, leftEditPage, a.config.NavigationTimeout, a.config.PollInterval); err != nil {
			if serr := s.checkChallenge(); serr != nil {
				return marketplace.Failed(serr)
			}
			return marketplace.Failed(s.mismatch("update was not accepted"))
		}
		out := ref
		if out.URL == "" {
			out.URL = a.config.BaseURL + "/listing/" + ref.ID
		}
		return marketplace.Succeeded(out)
	})
}

// DeleteListing deletes a listing from its edit page. A listing that is
// already gone counts as success.
func (a *PoshmarkAdapter) DeleteListing(ctx context.Context, ref marketplace.RemoteRef) marketplace.SyncResult {
	return a.run(ctx, "delete", func(s *poshSession) marketplace.SyncResult {
		if serr := s.open(a.editURL(ref)); serr != nil {
			return marketplace.Failed(serr)
		}
		if s.notFound() {
			a.logger.Info("Poshmark listing already gone", zap.String("listing_id", ref.ID))
			return marketplace.Succeeded(ref)
		}
		if serr := s.waitFor(poshSelTitle); serr != nil {
			return marketplace.Failed(serr)
		}
		if _, err := s.page.ClickText("Delete Listing"); err != nil {
			return marketplace.Failed(s.mismatch("delete button not found: %v", err))
		}
		if _, err := s.page.ClickText("Yes"); err != nil {
			return marketplace.Failed(s.mismatch("delete confirmation not found: %v", err))
		}
		if _, err := browser.WaitURL(ctx, s.page, leftEditPage, a.config.NavigationTimeout, a.config.PollInterval); err != nil {
			return marketplace.Failed(s.mismatch("delete did not return to the closet"))
		}
		return marketplace.Succeeded(ref)
	})
}

// FetchListingStatus opens the public listing page
func (a *PoshmarkAdapter) FetchListingStatus(ctx context.Context, ref marketplace.RemoteRef) marketplace.SyncResult {
	return a.run(ctx, "status", func(s *poshSession) marketplace.SyncResult {
		target := ref.URL
		if target == "" {
			target = a.config.BaseURL + "/listing/" + ref.ID
		}
		if serr := s.open(target); serr != nil {
			return marketplace.Failed(serr)
		}
		if s.notFound() {
			return marketplace.Failed(marketplace.NotFound("poshmark listing %s is gone", ref.ID))
		}

		state := marketplace.RemoteLive
		sold, err := s.page.Exists(poshSelSoldBadge)
		if err != nil {
			return marketplace.Failed(s.mismatch("could not read listing page: %v", err))
		}
		if sold {
			state = marketplace.RemoteEnded
		}
		return marketplace.Observed(ref, marketplace.RemoteSnapshot{State: state})
	})
}

// FindListing searches the seller's closet for a tile with the item's title
func (a *PoshmarkAdapter) FindListing(ctx context.Context, item *marketplace.InventoryItem) marketplace.SyncResult {
	return a.run(ctx, "locate", func(s *poshSession) marketplace.SyncResult {
		if s.username == "" {
			return marketplace.Failed(marketplace.Rejected(marketplace.CodeAccountMissing, "poshmark username is unknown"))
		}
		if serr := s.open(a.config.BaseURL + "/closet/" + s.username); serr != nil {
			return marketplace.Failed(serr)
		}
		anchors, err := s.page.Anchors(poshSelClosetTiles)
		if err != nil {
			return marketplace.Failed(s.mismatch("could not read closet: %v", err))
		}
		want := strings.TrimSpace(item.Title)
		for _, anchor := range anchors {
			if !strings.EqualFold(strings.TrimSpace(anchor.Text), want) {
				continue
			}
			if id := listingIDFromURL(anchor.Href); id != "" {
				return marketplace.Succeeded(marketplace.RemoteRef{ID: id, URL: stripQuery(anchor.Href)})
			}
		}
		return marketplace.Failed(marketplace.NotFound("no closet listing titled %q", want))
	})
}

// ---------------------------------------------------------------------------
// Session handling
// ---------------------------------------------------------------------------

// poshSession is one signed-in page
type poshSession struct {
	adapter  *PoshmarkAdapter
	ctx      context.Context
	page     browser.Page
	op       string
	username string
}

// run borrows a page, restores the session and runs fn. Screenshots are
// stored for automation mismatches.
func (a *PoshmarkAdapter) run(ctx context.Context, op string, fn func(s *poshSession) marketplace.SyncResult) marketplace.SyncResult {
	var res marketplace.SyncResult
	err := a.browser.WithPage(ctx, func(p browser.Page) error {
		s := &poshSession{adapter: a, ctx: ctx, page: p, op: op}
		if serr := a.signIn(s); serr != nil {
			res = marketplace.Failed(serr)
			return nil
		}
		res = fn(s)
		return nil
	})
	if err != nil {
		res = marketplace.Failed(a.browserFailure(err))
	}
	if !res.IsSuccess() {
		a.logger.Warn("Poshmark operation failed",
			zap.String("operation", op),
			zap.String("kind", string(res.Kind())),
			zap.Error(res.Err),
		)
	}
	return res
}

func (a *PoshmarkAdapter) browserFailure(err error) *marketplace.SyncError {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return marketplace.Mismatch(marketplace.CodeTimeout, "browser operation ended early: %v", err).WithCause(err)
	case errors.Is(err, browser.ErrSessionUnavailable), errors.Is(err, browser.ErrPoolClosed):
		return marketplace.Mismatch(marketplace.CodeSessionExhausted, "%v", err).WithCause(err)
	default:
		return marketplace.Mismatch(marketplace.CodeUnexpectedPage, "%v", err).WithCause(err)
	}
}

// signIn restores stored cookies and logs in with the configured
// credentials when they no longer work
func (a *PoshmarkAdapter) signIn(s *poshSession) *marketplace.SyncError {
	account, err := a.accounts.FindByMarketplace(s.ctx, marketplace.CodePoshmark)
	if err != nil && !errors.Is(err, marketplace.ErrAccountNotFound) {
		return marketplace.Rejected(marketplace.CodeAccountMissing, "failed to load poshmark account: %v", err).WithCause(err)
	}
	s.username = a.config.Username
	if account != nil && account.Username != "" {
		s.username = account.Username
	}

	if account != nil && account.SessionCookies != "" {
		cookies, perr := marketplace.ParseSessionCookies(account.SessionCookies)
		if perr != nil {
			a.logger.Warn("Ignoring unreadable stored Poshmark cookies", zap.Error(perr))
		} else if err := s.page.SetCookies(cookies); err != nil {
			return s.mismatch("could not restore session cookies: %v", err)
		}
	}

	if serr := s.open(a.config.BaseURL + "/feed"); serr != nil {
		return serr
	}
	if s.loggedIn() {
		return nil
	}

	if !a.config.HasCredentials() {
		if account == nil {
			return marketplace.Rejected(marketplace.CodeAccountMissing, "poshmark account is not connected")
		}
		return marketplace.Rejected(marketplace.CodeLoginFailed, "poshmark session expired and no credentials are configured")
	}

	if serr := s.open(a.config.BaseURL + "/login"); serr != nil {
		return serr
	}
	if serr := s.waitFor(poshSelLoginUser); serr != nil {
		return serr
	}
	if err := s.page.Fill(poshSelLoginUser, a.config.Username); err != nil {
		return s.mismatch("could not fill username: %v", err)
	}
	if err := s.page.Fill(poshSelLoginPassword, a.config.Password); err != nil {
		return s.mismatch("could not fill password: %v", err)
	}
	if err := s.page.Click(poshSelLoginSubmit); err != nil {
		return s.mismatch("could not submit login form: %v", err)
	}
	if _, err := browser.WaitURL(s.ctx, s.page, func(u string) bool {
		return !strings.Contains(strings.ToLower(u), "/login")
	}, a.config.NavigationTimeout, a.config.PollInterval); err != nil {
		if serr := s.checkChallenge(); serr != nil {
			return serr
		}
		return marketplace.Rejected(marketplace.CodeLoginFailed, "poshmark login was refused")
	}

	if s.username == "" {
		s.username = a.config.Username
	}
	a.saveSession(s, account)
	a.logger.Info("Poshmark login succeeded", zap.String("username", s.username))
	return nil
}

// saveSession stores the cookies of a fresh login on the account
func (a *PoshmarkAdapter) saveSession(s *poshSession, account *marketplace.MarketplaceAccount) {
	cookies, err := s.page.Cookies()
	if err != nil || len(cookies) == 0 {
		a.logger.Warn("Could not read Poshmark session cookies", zap.Error(err))
		return
	}
	encoded, err := marketplace.EncodeSessionCookies(cookies)
	if err != nil {
		a.logger.Warn("Could not encode Poshmark session cookies", zap.Error(err))
		return
	}
	if account == nil {
		account, err = marketplace.NewMarketplaceAccount(marketplace.CodePoshmark)
		if err != nil {
			return
		}
	}
	username := marketplace.SessionUsername(cookies)
	if username == "" {
		username = s.username
	}
	account.SetSession(encoded, username, a.now())
	if err := a.accounts.Save(s.ctx, account); err != nil {
		a.logger.Warn("Failed to persist Poshmark session", zap.Error(err))
	}
}

// open navigates and fails on a bot challenge
func (s *poshSession) open(url string) *marketplace.SyncError {
	if err := s.page.Navigate(url); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return marketplace.Mismatch(marketplace.CodeTimeout, "navigation to %s interrupted: %v", url, ctxErr).WithCause(err)
		}
		return s.mismatch("navigation to %s failed: %v", url, err)
	}
	return s.checkChallenge()
}

func (s *poshSession) checkChallenge() *marketplace.SyncError {
	text, err := s.page.Text()
	if err != nil {
		return nil
	}
	if browser.ContainsAny(text, poshBotChallengeText) {
		return s.capture(marketplace.Mismatch(marketplace.CodeBotChallenge, "poshmark served a bot challenge"))
	}
	return nil
}

func (s *poshSession) loggedIn() bool {
	u, err := s.page.URL()
	if err != nil || strings.Contains(strings.ToLower(u), "login") {
		return false
	}
	ok, err := s.page.Exists(poshSelLoggedIn)
	return err == nil && ok
}

func (s *poshSession) notFound() bool {
	text, err := s.page.Text()
	return err == nil && browser.ContainsAny(text, poshNotFoundTexts...)
}

// waitFor polls until selector matches an element
func (s *poshSession) waitFor(selector string) *marketplace.SyncError {
	cfg := s.adapter.config
	deadline := time.Now().Add(cfg.StepTimeout)
	for {
		ok, err := s.page.Exists(selector)
		if err == nil && ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			if serr := s.checkChallenge(); serr != nil {
				return serr
			}
			return s.mismatch("expected element %s did not appear", selector)
		}
		select {
		case <-s.ctx.Done():
			return marketplace.Mismatch(marketplace.CodeTimeout, "waiting for %s interrupted", selector).WithCause(s.ctx.Err())
		case <-time.After(cfg.PollInterval):
		}
	}
}

// fillItem writes the item's fields into the listing form
func (s *poshSession) fillItem(item *marketplace.InventoryItem) *marketplace.SyncError {
	price := item.Price.Floor().String()
	description := item.Description
	if strings.TrimSpace(description) == "" {
		description = item.Title
	}
	fields := []struct {
		name     string
		selector string
		value    string
	}{
		{"title", poshSelTitle, item.Title},
		{"description", poshSelDescription, description},
		{"original price", poshSelOriginalPrice, price},
		{"listing price", poshSelListingPrice, price},
	}
	for _, f := range fields {
		if err := s.page.Fill(f.selector, f.value); err != nil {
			return s.mismatch("could not fill %s: %v", f.name, err)
		}
	}
	return nil
}

// mismatch builds an automation mismatch with a screenshot attached
func (s *poshSession) mismatch(format string, args ...any) *marketplace.SyncError {
	return s.capture(marketplace.Mismatch(marketplace.CodeUnexpectedPage, format, args...))
}

// capture stores a full-page screenshot and records its key in the error
func (s *poshSession) capture(serr *marketplace.SyncError) *marketplace.SyncError {
	a := s.adapter
	if a.artifacts == nil {
		return serr
	}
	png, err := s.page.Screenshot()
	if err != nil || len(png) == 0 {
		a.logger.Debug("Screenshot unavailable", zap.Error(err))
		return serr
	}
	key := fmt.Sprintf("artifacts/poshmark/%s/%s-%s.png", a.now().Format("20060102"), s.op, uuid.NewString())
	if err := a.artifacts.PutObject(s.ctx, key, "image/png", bytes.NewReader(png), int64(len(png))); err != nil {
		a.logger.Warn("Failed to store screenshot", zap.Error(err))
		return serr
	}
	serr.Message = fmt.Sprintf("%s (screenshot %s)", serr.Message, key)
	return serr
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// materializeImages writes up to MaxImages photos to temp files. The
// returned cleanup removes them.
func (a *PoshmarkAdapter) materializeImages(ctx context.Context, item *marketplace.InventoryItem) ([]string, func(), *marketplace.SyncError) {
	noop := func() {}
	if a.images == nil {
		return nil, noop, marketplace.Rejected(marketplace.CodeMissingImages, "no image source is configured for poshmark")
	}
	dir, err := os.MkdirTemp(a.config.TempDir, "poshmark-*")
	if err != nil {
		return nil, noop, marketplace.Mismatch(marketplace.CodeMissingImages, "could not create temp dir: %v", err).WithCause(err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Warn("Failed to remove image temp dir", zap.String("dir", dir), zap.Error(err))
		}
	}

	var paths []string
	for _, img := range item.SortedImages() {
		if len(paths) == a.config.MaxImages {
			break
		}
		path, err := a.writeImage(ctx, dir, len(paths), img)
		if err != nil {
			a.logger.Warn("Skipping image", zap.String("image_id", img.ID.String()), zap.Error(err))
			continue
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		cleanup()
		return nil, noop, marketplace.Rejected(marketplace.CodeMissingImages, "poshmark listings need at least one image")
	}
	return paths, cleanup, nil
}

func (a *PoshmarkAdapter) writeImage(ctx context.Context, dir string, n int, img marketplace.ItemImage) (string, error) {
	rc, err := a.images.OpenImage(ctx, img)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	path := filepath.Join(dir, fmt.Sprintf("%02d%s", n, imageExt(img)))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func (a *PoshmarkAdapter) editURL(ref marketplace.RemoteRef) string {
	return a.config.BaseURL + "/edit-listing/" + ref.ID
}

func imageExt(img marketplace.ItemImage) string {
	for _, name := range []string{img.StorageKey, img.URL} {
		switch ext := strings.ToLower(filepath.Ext(stripQuery(name))); ext {
		case ".jpg", ".jpeg", ".png", ".webp", ".gif":
			return ext
		}
	}
	switch img.ContentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}

// listingIDFromURL returns the trailing id of a /listing/<slug>-<id> URL
func listingIDFromURL(u string) string {
	m := poshListingURL.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

func isListingURL(u string) bool {
	return listingIDFromURL(u) != "" && !strings.Contains(u, "/edit-listing/")
}

func leftEditPage(u string) bool {
	return u != "" && !strings.Contains(u, "/edit-listing/")
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// Ensure PoshmarkAdapter implements the marketplace ports
var (
	_ marketplace.Adapter        = (*PoshmarkAdapter)(nil)
	_ marketplace.ListingLocator = (*PoshmarkAdapter)(nil)
)
