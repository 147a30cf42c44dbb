package portal

import (
	"strings"
)

// LoginDetector decides whether a response is the portal's login page, it is the only signal
// used to notice that a session silently expired.
type LoginDetector struct {
	// Indicators are lowercase substrings that hint at a login page.
	Indicators []string
	// ShortBodyLimit is the size (in bytes) under which a body is inspected for indicators.
	ShortBodyLimit int
}

func DefaultLoginDetector() LoginDetector {
	return LoginDetector{
		Indicators:     []string{"login", "signin", "sign-in", "log-in", "authenticate"},
		ShortBodyLimit: 5000,
	}
}

func (d LoginDetector) containsIndicator(text string) bool {
	for _, indicator := range d.Indicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}

// hasPasswordForm expects an already lowercased body.
func hasPasswordForm(body string) bool {
	return strings.Contains(body, "<form") && strings.Contains(body, "password")
}

func (d LoginDetector) urlSignalsLogin(finalUrl string) bool {
	return d.containsIndicator(strings.ToLower(finalUrl))
}

// bodySignalsLogin only applies to short bodies, real content pages are expected to be large
// and routinely mention "login" in their navigation.
func (d LoginDetector) bodySignalsLogin(body string) bool {
	if len(body) >= d.ShortBodyLimit {
		return false
	}
	return d.containsIndicator(strings.ToLower(body))
}

// IsLoginPage classifies a page as a login page when it carries a password form and either
// its url or its (short) body contains a login indicator.
func (d LoginDetector) IsLoginPage(finalUrl, body string) bool {
	if !hasPasswordForm(strings.ToLower(body)) {
		return false
	}
	return d.urlSignalsLogin(finalUrl) || d.bodySignalsLogin(body)
}
