package ops

import (
	"net/url"
	"strings"
)

// ResolveLocator turns a relative visualization path into an address under
// base. Absolute locators, locators already under base and anything that
// does not parse are returned unchanged, so resolving twice equals
// resolving once.
func ResolveLocator(base, locator string) string {
	if strings.TrimSpace(locator) == "" || strings.TrimSpace(base) == "" {
		return locator
	}
	if isAbsoluteLocator(locator) {
		return locator
	}
	root := strings.TrimRight(base, "/")
	if strings.HasPrefix(locator, root+"/") {
		return locator
	}
	return root + "/" + strings.TrimLeft(locator, "/")
}

// ResolveLocators resolves every locator, preserving order.
func ResolveLocators(base string, locators []string) []string {
	resolved := make([]string, 0, len(locators))
	for _, locator := range locators {
		resolved = append(resolved, ResolveLocator(base, locator))
	}
	return resolved
}

func isAbsoluteLocator(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		// Malformed: leave it for the consumer to deal with.
		return true
	}
	if u.Scheme != "" {
		return true
	}
	// Protocol-relative, e.g. //cdn.example.com/a.png
	return u.Host != ""
}
