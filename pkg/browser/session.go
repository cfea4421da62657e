package browser

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one live browser the agent drives through coordinate-based
// actions. All methods mark the session used so idle accounting stays
// accurate.
type Session struct {
	Handle     string
	CreatedAt  time.Time
	LastUsedAt time.Time
	CurrentURL string

	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	mu     sync.Mutex
	paused bool
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) setPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// Paused reports whether the session is idling between tasks.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Navigate loads a URL and waits for the DOM to be ready. Returns the
// final URL after redirects.
func (s *Session) Navigate(url string) (string, error) {
	s.touch()
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", fmt.Errorf("browser: navigate to %s: %w", url, err)
	}
	s.CurrentURL = s.page.URL()
	return s.CurrentURL, nil
}

// Click performs a left click at viewport coordinates.
func (s *Session) Click(x, y float64) error {
	s.touch()
	if err := s.page.Mouse().Click(x, y); err != nil {
		return fmt.Errorf("browser: click at (%.0f, %.0f): %w", x, y, err)
	}
	s.CurrentURL = s.page.URL()
	return nil
}

// DoubleClick performs a double click at viewport coordinates.
func (s *Session) DoubleClick(x, y float64) error {
	s.touch()
	if err := s.page.Mouse().Dblclick(x, y); err != nil {
		return fmt.Errorf("browser: double click at (%.0f, %.0f): %w", x, y, err)
	}
	return nil
}

// TypeText types into whatever element currently has focus.
func (s *Session) TypeText(text string) error {
	s.touch()
	if err := s.page.Keyboard().Type(text); err != nil {
		return fmt.Errorf("browser: type text: %w", err)
	}
	return nil
}

// Press sends a single key or chord, e.g. "Enter" or "Control+a".
func (s *Session) Press(key string) error {
	s.touch()
	if err := s.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("browser: press %s: %w", key, err)
	}
	return nil
}

// Scroll scrolls the page by the given deltas.
func (s *Session) Scroll(deltaX, deltaY float64) error {
	s.touch()
	if err := s.page.Mouse().Wheel(deltaX, deltaY); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

// Screenshot captures the viewport as base64-encoded PNG.
func (s *Session) Screenshot() (string, error) {
	s.touch()
	data, err := s.page.Screenshot()
	if err != nil {
		return "", fmt.Errorf("browser: screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ReadPage extracts a text outline of the current page, bounded to
// maxLength characters of body text.
func (s *Session) ReadPage(maxLength int) (*PageSummary, error) {
	s.touch()
	content, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("browser: read page content: %w", err)
	}
	summary, err := SummarizePage(content, maxLength)
	if err != nil {
		return nil, err
	}
	summary.URL = s.page.URL()
	return summary, nil
}

// Wait pauses for the given duration, capped at 10 seconds so a confused
// model cannot stall an iteration indefinitely.
func (s *Session) Wait(d time.Duration) {
	const maxWait = 10 * time.Second
	if d > maxWait {
		d = maxWait
	}
	time.Sleep(d)
}
