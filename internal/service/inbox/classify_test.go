package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tensormd/repops/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Classification
	}{
		{"empty", "", domain.ReplyUnknown},
		{"whitespace only", "   \n  ", domain.ReplyUnknown},

		{"bare yes", "yes", domain.ReplyYes},
		{"yes with punctuation", "Yes!", domain.ReplyYes},
		{"yes with trailing clause", "Yes, sounds good.", domain.ReplyYes},
		{"sounds good", "sounds good.", domain.ReplyYes},
		{"sure with followup", "Sure, send over the details", domain.ReplyYes},
		{"interested", "Interested", domain.ReplyYes},
		{"yesterday is not yes", "Yesterday was rough, call me never", domain.ReplyUnknown},
		{"yes on first line", "YES\n\nSend me the details", domain.ReplyYes},
		{"yes buried in sentence is not yes", "I said yes to another vendor already", domain.ReplyUnknown},

		{"opt out", "please opt out", domain.ReplyOptOut},
		{"optout no space", "optout", domain.ReplyOptOut},
		{"unsubscribe", "Unsubscribe me immediately", domain.ReplyOptOut},
		{"remove me", "remove me from your list", domain.ReplyOptOut},
		{"do not contact", "Do not contact this address again", domain.ReplyOptOut},

		{"later", "not now, maybe next quarter", domain.ReplyLater},
		{"check back", "Busy season — check back in the fall", domain.ReplyLater},

		{"question mark", "How much does it cost?", domain.ReplyQuestion},
		{"question mid body", "What do you charge? We have 3 locations.", domain.ReplyQuestion},

		{"plain text", "Thanks for reaching out.", domain.ReplyUnknown},

		// Precedence: opt-out wins over everything else.
		{"optout beats yes", "yes\nactually no, unsubscribe me", domain.ReplyOptOut},
		{"optout beats question", "Can you remove me from your list?", domain.ReplyOptOut},
		// Yes on the first line wins over a later question.
		{"yes beats question", "yes\nwhat happens next?", domain.ReplyYes},
		// Later beats question.
		{"later beats question", "not now ok? check back later", domain.ReplyLater},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.body))
		})
	}
}

func TestStripHTML(t *testing.T) {
	html := `<html><body><p>Yes, let's talk.</p><br>&nbsp;<div>— Sam</div></body></html>`
	got := StripHTML(html)
	assert.Contains(t, got, "Yes, let's talk.")
	assert.Contains(t, got, "— Sam")
	assert.NotContains(t, got, "<")
}

func TestFromAddress(t *testing.T) {
	assert.Equal(t, "sam@acme.com", FromAddress("Sam Smith <Sam@Acme.com>"))
	assert.Equal(t, "sam@acme.com", FromAddress("sam@acme.com"))
	assert.Equal(t, "sam@acme.com", FromAddress("  SAM@ACME.COM  "))
}
