// Package provider maps product page hosts to merchant labels.
package provider

import (
	"net/url"
	"strings"
)

// Unknown is returned for addresses whose host cannot be determined.
const Unknown = "unknown"

type entry struct {
	fragment string
	label    string
}

// Known merchants, matched by substring against the host. When several
// fragments match, the first declared entry wins.
var knownDomains = []entry{
	{"supermat.com.ar", "VTEX - Supermat"},
	{"elamigo.com.ar", "VTEX - El Amigo"},
	{"unimax.com.ar", "VTEX - Unimax"},
	{"bercovich.com.ar", "VTEX - Bercovich"},
	{"tiendaemi.com.ar", "Tienda Nube - Tienda Emi"},
	{"zeramiko.com.ar", "Tienda Nube - Zeramiko"},
}

var platforms = []entry{
	{"vtex", "VTEX"},
	{"tiendanube", "Tienda Nube"},
}

// Resolve returns the provider label for rawURL. It never fails; malformed
// addresses yield Unknown.
func Resolve(rawURL string) string {
	host := Host(rawURL)
	if host == "" {
		return Unknown
	}
	for _, e := range knownDomains {
		if strings.Contains(host, e.fragment) {
			return e.label
		}
	}
	for _, p := range platforms {
		if strings.Contains(host, p.fragment) {
			return p.label
		}
	}
	return host
}

// Host returns the lower-cased hostname of rawURL without a leading "www.",
// or "" when there is none.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsPlatform reports whether label belongs to the given platform family,
// e.g. IsPlatform("VTEX - Supermat", "vtex").
func IsPlatform(label, platform string) bool {
	return strings.Contains(strings.ToLower(label), strings.ToLower(platform))
}
