package politeness

import "github.com/JakeFAU/newsarchive-crawler/internal/crawler"

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
}

var viewports = []crawler.Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
}

var locales = []string{"en-US", "en-GB", "en-CA", "de-DE", "fr-FR"}

var timezones = []string{
	"America/New_York",
	"Europe/London",
	"Europe/Berlin",
	"Asia/Tokyo",
	"Australia/Sydney",
}

// RandomFingerprint draws each fingerprint attribute uniformly and independently.
func (c *Controller) RandomFingerprint() crawler.Fingerprint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return crawler.Fingerprint{
		UserAgent: userAgents[c.rng.IntN(len(userAgents))],
		Viewport:  viewports[c.rng.IntN(len(viewports))],
		Locale:    locales[c.rng.IntN(len(locales))],
		Timezone:  timezones[c.rng.IntN(len(timezones))],
	}
}
