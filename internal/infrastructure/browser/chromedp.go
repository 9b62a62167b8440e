package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/domain/marketplace"
	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
)

const (
	defaultSessionTimeout = 3 * time.Minute
	defaultStepTimeout    = 20 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ChromedpConfig contains configuration for chromedp sessions
type ChromedpConfig struct {
	// RemoteURL is the DevTools websocket of a remote Chrome (optional).
	// If empty, a local browser is launched.
	RemoteURL string
	// Headless mode
	Headless bool
	// NoSandbox runs Chrome without sandbox (required for Docker/root)
	NoSandbox bool
	// SessionTimeout bounds one borrowed session
	SessionTimeout time.Duration
	// StepTimeout bounds a single page action
	StepTimeout time.Duration
	UserAgent   string
	Logger      *zap.Logger
}

// NewChromedpConfig builds session settings from application configuration
func NewChromedpConfig(cfg infraconfig.BrowserConfig, logger *zap.Logger) *ChromedpConfig {
	return &ChromedpConfig{
		RemoteURL:      cfg.RemoteURL,
		Headless:       cfg.Headless,
		NoSandbox:      cfg.NoSandbox,
		SessionTimeout: cfg.SessionTimeout,
		Logger:         logger,
	}
}

// Chromedp owns the Chrome allocator and starts one tab per session
type Chromedp struct {
	config      *ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates the allocator. Chrome itself starts lazily with the
// first session.
func NewChromedp(config *ChromedpConfig) *Chromedp {
	if config == nil {
		config = &ChromedpConfig{Headless: true}
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = defaultSessionTimeout
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = defaultStepTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Chromedp{config: config, logger: logger}
	if config.RemoteURL != "" {
		c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
	} else {
		c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	}
	return c
}

func (c *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(c.config.UserAgent),
	)
	if c.config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// NewSession implements SessionFactory. The tab closes when release is
// called, when the session timeout passes, or when ctx ends.
func (c *Chromedp) NewSession(ctx context.Context) (Page, func(), error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			c.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, c.config.SessionTimeout)
	stop := context.AfterFunc(ctx, tabCancel)

	release := func() {
		stop()
		timeoutCancel()
		tabCancel()
	}

	// Run with no actions starts the browser and the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		release()
		return nil, nil, err
	}
	return &chromePage{ctx: tabCtx, step: c.config.StepTimeout}, release, nil
}

// Close stops the browser
func (c *Chromedp) Close() {
	if c.allocCancel != nil {
		c.allocCancel()
	}
}

// chromePage implements Page on a chromedp tab
type chromePage struct {
	ctx  context.Context
	step time.Duration
}

func (p *chromePage) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	err := chromedp.Run(ctx, actions...)
	if err != nil && ctx.Err() == context.DeadlineExceeded && p.ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrWaitTimeout, err)
	}
	return err
}

func (p *chromePage) Navigate(url string) error {
	return p.run(p.step*2, chromedp.Navigate(url))
}

func (p *chromePage) URL() (string, error) {
	var u string
	err := p.run(p.step, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) Text() (string, error) {
	var s string
	err := p.run(p.step, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &s))
	return s, err
}

func (p *chromePage) WaitVisible(selector string, timeout time.Duration) error {
	return p.run(timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Exists(selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var ok bool
	err = p.run(p.step, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, quoted), &ok))
	return ok, err
}

func (p *chromePage) Fill(selector, value string) error {
	return p.run(p.step,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *chromePage) Click(selector string) error {
	return p.run(p.step, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) ClickText(texts ...string) (string, error) {
	for _, text := range texts {
		var nodes []*cdp.Node
		if err := p.run(p.step, chromedp.Nodes(textXPath(text), &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
			return "", err
		}
		if len(nodes) == 0 {
			continue
		}
		if err := p.run(p.step, chromedp.MouseClickNode(nodes[0])); err != nil {
			return "", err
		}
		return text, nil
	}
	return "", fmt.Errorf("%w: none of %q", ErrElementNotFound, texts)
}

func (p *chromePage) Anchors(selector string) ([]Anchor, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(a => ({text: (a.innerText || "").trim(), href: a.href || ""}))`, quoted)
	var anchors []Anchor
	err = p.run(p.step, chromedp.Evaluate(script, &anchors))
	return anchors, err
}

func (p *chromePage) Upload(selector string, paths []string) error {
	return p.run(p.step*3, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery))
}

func (p *chromePage) SetCookies(cookies []marketplace.SessionCookie) error {
	params := toCookieParams(cookies)
	if len(params) == 0 {
		return nil
	}
	return p.run(p.step, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

func (p *chromePage) Cookies() ([]marketplace.SessionCookie, error) {
	var cookies []*network.Cookie
	err := p.run(p.step, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return fromNetworkCookies(cookies), nil
}

func (p *chromePage) Screenshot() ([]byte, error) {
	var buf []byte
	err := p.run(p.step, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

// textXPath matches buttons, links and button-like elements by their text
func textXPath(text string) string {
	lit := xpathLiteral(strings.TrimSpace(text))
	return fmt.Sprintf(`//button[normalize-space(.)=%[1]s] | //a[normalize-space(.)=%[1]s] | //*[@role="button"][normalize-space(.)=%[1]s]`, lit)
}

// xpathLiteral quotes s as an XPath 1.0 string literal
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	return `concat('` + strings.Join(parts, `', "'", '`) + `')`
}

func toCookieParams(cookies []marketplace.SessionCookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			ts := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			param.Expires = &ts
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none", "no_restriction":
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}
	return params
}

func fromNetworkCookies(cookies []*network.Cookie) []marketplace.SessionCookie {
	out := make([]marketplace.SessionCookie, 0, len(cookies))
	for _, c := range cookies {
		sc := marketplace.SessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		}
		if c.Expires > 0 {
			sc.Expires = c.Expires
		}
		out = append(out, sc)
	}
	return out
}
