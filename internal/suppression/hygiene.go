package suppression

import (
	"regexp"
	"strings"
)

// publicWebmailDomains are consumer mailbox providers. Outreach only
// targets business addresses, so these are rejected at enrichment.
var publicWebmailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"outlook.com": true,
	"hotmail.com": true,
	"aol.com":     true,
	"icloud.com":  true,
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lowercases and trims an address or domain key.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDomain reduces a domain or URL to a bare lowercase hostname:
// scheme, www prefix, path, and port are stripped.
func NormalizeDomain(domainOrURL string) string {
	d := strings.ToLower(strings.TrimSpace(domainOrURL))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	return d
}

// EmailDomain returns the domain part of an address, or "" if malformed.
func EmailDomain(email string) string {
	e := NormalizeEmail(email)
	i := strings.LastIndexByte(e, '@')
	if i < 0 || i == len(e)-1 {
		return ""
	}
	return e[i+1:]
}

// IsValidBusinessEmail reports whether email is syntactically valid and not
// hosted on a public webmail provider.
func IsValidBusinessEmail(email string) bool {
	e := NormalizeEmail(email)
	if e == "" || !emailRe.MatchString(e) {
		return false
	}
	return !publicWebmailDomains[EmailDomain(e)]
}
