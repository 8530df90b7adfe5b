// Package inbox classifies and processes inbound replies from the shared
// outreach mailbox. Classification is deterministic regex matching; the
// opt-out check always runs first so a compliance request can never be
// shadowed by a friendlier pattern.
package inbox

import (
	"regexp"
	"strings"

	"github.com/tensormd/repops/internal/domain"
)

var (
	optOutRe   = regexp.MustCompile(`(?i)\b(opt\s*out|unsubscribe|remove me|do not contact)\b`)
	yesRe      = regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|sure|interested|send it|sounds good)\b`)
	laterRe    = regexp.MustCompile(`(?i)\b(not now|later|next month|check back|in a few weeks)\b`)
	htmlTagRe  = regexp.MustCompile(`<[^>]+>`)
	fromAddrRe = regexp.MustCompile(`<([^>]+)>`)
)

// Classify labels a reply body. Order matters: opt-out beats everything,
// then a first-line affirmative, then deferral phrases, then any question
// mark, else unknown.
func Classify(body string) domain.Classification {
	b := strings.TrimSpace(body)
	if b == "" {
		return domain.ReplyUnknown
	}

	if optOutRe.MatchString(b) {
		return domain.ReplyOptOut
	}

	firstLine := b
	if i := strings.IndexByte(b, '\n'); i >= 0 {
		firstLine = b[:i]
	}
	if yesRe.MatchString(firstLine) {
		return domain.ReplyYes
	}

	if laterRe.MatchString(b) {
		return domain.ReplyLater
	}

	if strings.Contains(b, "?") {
		return domain.ReplyQuestion
	}

	return domain.ReplyUnknown
}

// StripHTML is the fallback body extraction when a message has no plain
// text part.
func StripHTML(html string) string {
	text := htmlTagRe.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	return strings.TrimSpace(text)
}

// FromAddress extracts the bare address from a "Name <email@host>" header
// value.
func FromAddress(fromHeader string) string {
	if m := fromAddrRe.FindStringSubmatch(fromHeader); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return strings.ToLower(strings.TrimSpace(fromHeader))
}
