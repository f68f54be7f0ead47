// Package platform classifies apply URLs into the fixed set of application
// platforms the orchestrator knows how to drive.
package platform

import (
	"net/url"
	"strings"
)

// Platform identifies the application system behind an apply URL.
type Platform string

const (
	LinkedIn   Platform = "linkedin"
	Indeed     Platform = "indeed"
	Greenhouse Platform = "greenhouse"
	Lever      Platform = "lever"
	Other      Platform = "other"
)

// Classify inspects the apply URL's host and returns the matching platform.
// It never fails: unknown, ambiguous or unparseable URLs fall through to
// Other, which the generic form strategy handles.
func Classify(applyURL string) Platform {
	u, err := url.Parse(applyURL)
	if err != nil {
		return Other
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(host, "linkedin."):
		return LinkedIn
	case strings.Contains(host, "indeed."):
		return Indeed
	case strings.Contains(host, "greenhouse.io"):
		return Greenhouse
	case strings.Contains(host, "lever.co"):
		return Lever
	default:
		return Other
	}
}

// OnDomain reports whether pageURL is still on the given platform's domain.
// Used for redirect detection after an apply click.
func OnDomain(p Platform, pageURL string) bool {
	return Classify(pageURL) == p
}
