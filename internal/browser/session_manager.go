// Package browser owns the Chrome lifecycle and the persisted login
// session. Cookies captured during an interactive login are replayed
// into every fresh browser instance.
package browser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"gramkeeper/internal/logging"
)

const loginURL = "https://www.instagram.com/accounts/login/"

// Config holds browser configuration.
type Config struct {
	Headless            bool   `json:"headless"`
	Bin                 string `json:"bin"`
	UserAgent           string `json:"user_agent"`
	ViewportWidth       int    `json:"viewport_width"`
	ViewportHeight      int    `json:"viewport_height"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms"`
	SessionFile         string `json:"session_file"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dataDir string) Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1440,
		ViewportHeight:      900,
		NavigationTimeoutMs: 30000,
		SessionFile:         filepath.Join(dataDir, "session.json"),
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

func (c Config) viewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1440
	}
	return c.ViewportWidth
}

func (c Config) viewportHeight() int {
	if c.ViewportHeight == 0 {
		return 900
	}
	return c.ViewportHeight
}

// SessionManager launches browsers and carries the saved login cookies
// into each of them. Every AuthedPage call gets a fresh Chrome with an
// isolated profile; the returned cleanup tears the whole instance down.
type SessionManager struct {
	cfg Config
}

// NewSessionManager creates a session manager.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{cfg: cfg}
}

// HasSession reports whether a saved login session exists on disk.
func (m *SessionManager) HasSession() bool {
	info, err := os.Stat(m.cfg.SessionFile)
	return err == nil && info.Size() > 0
}

// AuthedPage launches a fresh browser, replays the saved session
// cookies into a new page, and returns it. The cleanup function closes
// the page and the browser; callers must invoke it exactly once.
func (m *SessionManager) AuthedPage(ctx context.Context) (*rod.Page, func(), error) {
	cookies, err := m.loadCookies()
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	browser, cleanup, err := m.launch(ctx, m.cfg.Headless)
	if err != nil {
		return nil, nil, err
	}

	page, err := m.newPage(ctx, browser)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if len(cookies) > 0 {
		if err := page.SetCookies(cookieParams(cookies)); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("replay cookies: %w", err)
		}
		logging.BrowserDebug("replayed %d session cookies", len(cookies))
	} else {
		logging.Browser("no saved session; pages will be unauthenticated")
	}

	return page, cleanup, nil
}

// SaveSession snapshots the page's cookies to the session file.
func (m *SessionManager) SaveSession(page *rod.Page) error {
	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}

	data, err := json.MarshalIndent(res.Cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(m.cfg.SessionFile, data, 0o600); err != nil {
		return err
	}
	logging.Browser("saved %d cookies to %s", len(res.Cookies), m.cfg.SessionFile)
	return nil
}

// LoginInteractive opens a headful browser at the login page, waits for
// the operator to finish logging in, then persists the cookies. Meant
// for the one-time CLI login flow.
func (m *SessionManager) LoginInteractive(ctx context.Context) error {
	browser, cleanup, err := m.launch(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	page, err := m.newPage(ctx, browser)
	if err != nil {
		return err
	}
	if err := page.Timeout(m.cfg.NavigationTimeout()).Navigate(loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	fmt.Println("Log in using the browser window, then press Enter here to save the session.")
	done := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	return m.SaveSession(page)
}

func (m *SessionManager) launch(ctx context.Context, headless bool) (*rod.Browser, func(), error) {
	// Isolated profile per instance so concurrent or crashed runs never
	// share browser state.
	profileDir := filepath.Join(os.TempDir(), "gramkeeper-"+uuid.NewString())

	l := launcher.New().
		Headless(headless).
		Set(flags.UserDataDir, profileDir)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}

	cleanup := func() {
		if err := browser.Close(); err != nil {
			logging.BrowserDebug("browser close: %v", err)
		}
		l.Cleanup()
		_ = os.RemoveAll(profileDir)
	}
	logging.BrowserDebug("chrome launched (headless=%v)", headless)
	return browser, cleanup, nil
}

func (m *SessionManager) newPage(ctx context.Context, browser *rod.Browser) (*rod.Page, error) {
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.viewportWidth(),
		Height:            m.cfg.viewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserDebug("set viewport: %v", err)
	}

	if m.cfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent: m.cfg.UserAgent,
		}).Call(page); err != nil {
			logging.BrowserDebug("set user agent: %v", err)
		}
	}
	return page, nil
}

func (m *SessionManager) loadCookies() ([]*proto.NetworkCookie, error) {
	data, err := os.ReadFile(m.cfg.SessionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return cookies, nil
}

func cookieParams(cookies []*proto.NetworkCookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}
	return params
}
