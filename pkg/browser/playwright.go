package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/steerhq/steer/pkg/logging"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 800
	defaultActionTimeout  = 30000 // milliseconds, playwright convention
)

// PlaywrightProvider implements Provider on a locally-launched Chromium.
type PlaywrightProvider struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	sessions    map[string]*Session
	headless    bool
	log         *logging.Logger
	initialized bool
}

// PlaywrightOption configures a PlaywrightProvider.
type PlaywrightOption func(*PlaywrightProvider)

// WithHeadless controls whether Chromium runs headless. Defaults to true.
func WithHeadless(headless bool) PlaywrightOption {
	return func(p *PlaywrightProvider) {
		p.headless = headless
	}
}

// NewPlaywrightProvider creates the provider. Initialize must be called
// before the first Create.
func NewPlaywrightProvider(opts ...PlaywrightOption) *PlaywrightProvider {
	logger, err := logging.NewLogger("browser")
	if err != nil {
		logger.Warnf("file logging unavailable: %v", err)
	}

	p := &PlaywrightProvider{
		sessions: make(map[string]*Session),
		headless: true,
		log:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize installs the playwright driver and starts it. Output is
// discarded so driver installation noise never reaches the terminal.
func (p *PlaywrightProvider) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("browser: install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("browser: start playwright: %w", err)
	}

	p.pw = pw
	p.initialized = true
	return nil
}

// Create launches a Chromium instance with a fresh context and page and
// returns the session handle.
func (p *PlaywrightProvider) Create(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return "", fmt.Errorf("browser: provider not initialized")
	}

	launched, err := p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &p.headless,
	})
	if err != nil {
		return "", fmt.Errorf("browser: launch chromium: %w", err)
	}

	browserCtx, err := launched.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  defaultViewportWidth,
			Height: defaultViewportHeight,
		},
	})
	if err != nil {
		launched.Close()
		return "", fmt.Errorf("browser: create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		launched.Close()
		return "", fmt.Errorf("browser: create page: %w", err)
	}
	page.SetDefaultTimeout(defaultActionTimeout)

	handle := uuid.New().String()
	now := time.Now()
	p.sessions[handle] = &Session{
		Handle:     handle,
		browser:    launched,
		context:    browserCtx,
		page:       page,
		CreatedAt:  now,
		LastUsedAt: now,
		CurrentURL: "about:blank",
	}

	p.log.Infof("created browser session %s", handle)
	return handle, nil
}

// Pause marks the session idle. The local backend keeps the browser
// process alive so page state survives across tasks; pausing is a state
// flag, not a teardown.
func (p *PlaywrightProvider) Pause(ctx context.Context, handle string) error {
	session, err := p.Session(handle)
	if err != nil {
		return err
	}
	session.setPaused(true)
	p.log.Debugf("paused browser session %s", handle)
	return nil
}

// Resume reactivates a paused session.
func (p *PlaywrightProvider) Resume(ctx context.Context, handle string) error {
	session, err := p.Session(handle)
	if err != nil {
		return err
	}
	session.setPaused(false)
	p.log.Debugf("resumed browser session %s", handle)
	return nil
}

// Destroy closes the session's page, context, and browser. Close errors
// on individual resources do not stop the rest of the teardown.
func (p *PlaywrightProvider) Destroy(ctx context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[handle]
	if !ok {
		return ErrSessionNotFound
	}

	_ = session.page.Close()
	_ = session.context.Close()
	_ = session.browser.Close()
	delete(p.sessions, handle)

	p.log.Infof("destroyed browser session %s", handle)
	return nil
}

// ControlURL is not available for a locally-launched browser.
func (p *PlaywrightProvider) ControlURL(ctx context.Context, handle string) (string, error) {
	if _, err := p.Session(handle); err != nil {
		return "", err
	}
	return "", ErrNoControlURL
}

// Session resolves a handle to its live session.
func (p *PlaywrightProvider) Session(handle string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[handle]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Shutdown destroys every live session and stops the playwright driver.
func (p *PlaywrightProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for handle, session := range p.sessions {
		_ = session.page.Close()
		_ = session.context.Close()
		_ = session.browser.Close()
		delete(p.sessions, handle)
	}

	if p.initialized && p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			return fmt.Errorf("browser: stop playwright: %w", err)
		}
		p.initialized = false
	}
	return nil
}
