// Package normalize turns locale-formatted price strings and noisy page text
// into clean values.
package normalize

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	currencyPattern = regexp.MustCompile(`(?i)ars|\$`)
	// a lone dot followed by exactly three digits is a thousands separator ("2.000")
	groupingDotPattern = regexp.MustCompile(`^\d+\.\d{3}$`)
	leadingNumber      = regexp.MustCompile(`^\d*(\.\d*)?`)
)

// ParsePrice converts strings such as "1.234,56", "$999" or "ARS 2.000" into
// a float. The bool is false when nothing numeric could be read, which callers
// must keep apart from a real zero price.
func ParsePrice(raw string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	s = currencyPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return 0, false
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		last := strings.LastIndex(s, ",")
		s = strings.ReplaceAll(s[:last], ",", "") + "." + s[last+1:]
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case groupingDotPattern.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	num := leadingNumber.FindString(s)
	if strings.Trim(num, ".") == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CleanText collapses whitespace runs into single spaces, trims the ends and
// composes accents (NFC) so equal names compare equal across storefronts.
func CleanText(raw string) string {
	return norm.NFC.String(strings.Join(strings.Fields(raw), " "))
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ParseCSVURLs reads one URL per line, taking the first column when the line
// has several. Lines that are not http(s) URLs are dropped.
func ParseCSVURLs(text string) []string {
	text = strings.TrimPrefix(text, "\ufeff")

	var urls []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if i := strings.Index(line, ","); i >= 0 {
			line = line[:i]
		}
		line = CleanText(strings.Trim(line, `"'`))
		if line == "" || !IsHTTPURL(line) {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}
