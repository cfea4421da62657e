package agent

import (
	"time"

	"github.com/steerhq/steer/pkg/browser"
)

// BrowserDriver is the slice of a browser session the agent drives.
// *browser.Session implements it; tests substitute a scripted fake.
type BrowserDriver interface {
	Navigate(url string) (string, error)
	Click(x, y float64) error
	DoubleClick(x, y float64) error
	TypeText(text string) error
	Press(key string) error
	Scroll(deltaX, deltaY float64) error
	Screenshot() (string, error)
	ReadPage(maxLength int) (*browser.PageSummary, error)
	Wait(d time.Duration)
}

var _ BrowserDriver = (*browser.Session)(nil)
