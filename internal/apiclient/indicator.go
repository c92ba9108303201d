package apiclient

import (
	"sync"

	"srq20.org/internal/obs"
)

// Indicator is the visible busy signal around every request.
type Indicator interface {
	Show()
	Hide()
}

type noopIndicator struct{}

func (noopIndicator) Show() {}
func (noopIndicator) Hide() {}

// busy shows the indicator and returns the release that hides it. Callers
// defer the release so it runs on every exit path, panics included.
func (c *Client) busy() func() {
	c.indicator.Show()
	done := obs.TrackInFlight()
	var once sync.Once
	return func() {
		once.Do(func() {
			done()
			c.indicator.Hide()
		})
	}
}
