package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/placerank/internal/geo"
	"github.com/nao1215/placerank/internal/identity"
	"github.com/nao1215/placerank/internal/model"
)

// AcceptLanguage is sent with every request and reported by navigator.languages.
const AcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"

// Mobile viewport of the emulated device.
const (
	viewportWidth  = 390
	viewportHeight = 844
	deviceScale    = 3
)

// IdentitySource supplies the identity of a new session.
type IdentitySource interface {
	Identity() identity.Identity
}

// Delayer waits a random duration between lo and hi.
type Delayer interface {
	Delay(ctx context.Context, lo, hi time.Duration) error
}

// Target is what a session is opened on.
type Target struct {
	Keyword string
	Route   model.Route

	// RadiusM overrides the manager's jitter radius when positive.
	RadiusM float64
}

// Manager opens browser sessions.
type Manager struct {
	identities IdentitySource
	jitter     *geo.Jitterer
	delayer    Delayer
	logger     *slog.Logger

	baseURL           string
	basePoint         geo.Point
	radiusM           float64
	headless          bool
	proxyServer       string
	execPath          string
	navigationTimeout time.Duration
	initialDelayLo    time.Duration
	initialDelayHi    time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseURL sets the scheme and host of the search front end.
func WithBaseURL(u string) Option {
	return func(m *Manager) { m.baseURL = u }
}

// WithBasePoint sets the centre of the jitter disc and its radius.
func WithBasePoint(p geo.Point, radiusM float64) Option {
	return func(m *Manager) {
		m.basePoint = p
		m.radiusM = radiusM
	}
}

// WithHeadless toggles headless mode.
func WithHeadless(headless bool) Option {
	return func(m *Manager) { m.headless = headless }
}

// WithProxyServer routes the browser through a proxy ("http://host:port").
func WithProxyServer(proxy string) Option {
	return func(m *Manager) { m.proxyServer = proxy }
}

// WithExecPath sets the Chrome binary. Empty lets chromedp search PATH.
func WithExecPath(path string) Option {
	return func(m *Manager) { m.execPath = path }
}

// WithNavigationTimeout bounds navigation until network idle.
func WithNavigationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.navigationTimeout = d
		}
	}
}

// WithInitialDelay sets the pause after the page went idle.
func WithInitialDelay(lo, hi time.Duration) Option {
	return func(m *Manager) { m.initialDelayLo, m.initialDelayHi = lo, hi }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager.
func NewManager(identities IdentitySource, jitter *geo.Jitterer, delayer Delayer, opts ...Option) *Manager {
	m := &Manager{
		identities:        identities,
		jitter:            jitter,
		delayer:           delayer,
		logger:            slog.Default(),
		baseURL:           "https://m.place.naver.com",
		basePoint:         geo.Point{Longitude: 126.9783882, Latitude: 37.5666103},
		radiusM:           300,
		headless:          true,
		navigationTimeout: 60 * time.Second,
		initialDelayLo:    2 * time.Second,
		initialDelayHi:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// allocatorOptions returns the flags of a fresh browser process.
func (m *Manager) allocatorOptions(userAgent string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", m.headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.WindowSize(viewportWidth, viewportHeight),
		chromedp.UserAgent(userAgent),
	)
	if m.proxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(m.proxyServer))
	}
	if m.execPath != "" {
		opts = append(opts, chromedp.ExecPath(m.execPath))
	}
	return opts
}

// Open launches a browser, applies identity and location, navigates to the
// result list of t and waits for the network to go idle. On any failure the
// partially created browser is torn down before the error is returned.
func (m *Manager) Open(ctx context.Context, t Target) (_ *Session, err error) {
	id := m.identities.Identity()
	radius := m.radiusM
	if t.RadiusM > 0 {
		radius = t.RadiusM
	}
	point := m.jitter.Around(m.basePoint, radius)
	listURL := BuildListURL(m.baseURL, t.Route, t.Keyword, point)

	cookieDomain, err := identity.CookieDomain(m.baseURL)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, m.allocatorOptions(id.UserAgent)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	s := newSession(tabCtx, cancelTab, cancelAlloc)
	s.URL, s.Point, s.IdentitySource = listURL, point, id.Source
	defer func() {
		if err != nil {
			if cerr := s.Close(); cerr != nil {
				m.logger.Warn("failed to release browser after open error", "error", cerr)
			}
		}
	}()

	var idleArmed atomic.Bool
	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.Name != "networkIdle" || !idleArmed.Load() {
			return
		}
		select {
		case idle <- struct{}{}:
		default:
		}
	})

	// The first Run allocates the browser, so it must not carry a timeout.
	if err = chromedp.Run(tabCtx, m.prepare(id, point, cookieDomain)...); err != nil {
		return nil, fmt.Errorf("failed to prepare browser: %w", err)
	}

	m.logger.Info("opening result list",
		"keyword", t.Keyword,
		"route", string(t.Route),
		"lon", point.Longitude,
		"lat", point.Latitude,
		"identity", string(id.Source))

	navCtx, cancelNav := context.WithTimeout(tabCtx, m.navigationTimeout)
	defer cancelNav()

	idleArmed.Store(true)
	if err = chromedp.Run(navCtx, chromedp.Navigate(listURL)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrNavigationTimeout
		}
		return nil, fmt.Errorf("failed to navigate to %s: %w", listURL, err)
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		} else {
			err = ErrNavigationTimeout
		}
		return nil, err
	}

	if err = m.delayer.Delay(ctx, m.initialDelayLo, m.initialDelayHi); err != nil {
		return nil, err
	}
	return s, nil
}

// prepare returns the actions that make the tab look like a phone at point.
func (m *Manager) prepare(id identity.Identity, point geo.Point, cookieDomain string) []chromedp.Action {
	cookies := identity.ParseCookieHeader(id.CookieHeader, cookieDomain)
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	actions := []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetUserAgentOverride(id.UserAgent).
			WithAcceptLanguage(AcceptLanguage).
			WithPlatform("iPhone"),
		emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, deviceScale, true),
		emulation.SetTouchEmulationEnabled(true),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": AcceptLanguage}),
		// Browser domain commands go to the browser target, not the tab.
		chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			return browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeGeolocation}).
				WithOrigin(m.baseURL).
				Do(cdp.WithExecutor(ctx, c.Browser))
		}),
		emulation.SetGeolocationOverride().
			WithLatitude(point.Latitude).
			WithLongitude(point.Longitude).
			WithAccuracy(30),
	}
	if len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
	}
	return actions
}

// With opens a session on t, runs fn and closes the session on every exit
// path. A close error is returned only when fn succeeded.
func (m *Manager) With(ctx context.Context, t Target, fn func(*Session) error) (err error) {
	s, err := m.Open(ctx, t)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				m.logger.Warn("failed to close browser", "error", cerr)
			}
		}
	}()
	return fn(s)
}
