package outbound

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"
)

// Draft copy variants rotate round-robin so each gets roughly equal volume.
var variantOrder = []string{"A", "B", "C"}

type emailTemplate struct {
	subject string
	body    string
}

var emailTemplates = map[string]emailTemplate{
	"A": {
		subject: "Quick question about reviews at {{ company }}",
		body: "Hi {{ first_or_team }},\n\n" +
			"I run TensorMarketData — we handle reputation operations for HVAC: monitor reviews, draft replies fast, " +
			"and route 1–3★ to you for approval before anything posts.\n\n" +
			"{{ personalization }}" +
			"If you want this handled without extra staff, reply \"YES\" and I'll send a 2-minute onboarding link.\n\n" +
			"— Nova\n" +
			"TensorMarketData\n\n" +
			"Opt out: reply \"opt out\"\n" +
			"Address: {{ address }}\n",
	},
	"B": {
		subject: "Approval-gated review replies for {{ company }}",
		body: "Hi {{ first_or_team }},\n\n" +
			"Negative replies shouldn't auto-post. We run an approval-gated workflow for HVAC: drafts for everything, " +
			"approval queue for 1–3★, audit log, and weekly scorecards.\n\n" +
			"{{ personalization }}" +
			"Want the onboarding link? Reply \"YES\".\n\n" +
			"— Nova\n" +
			"TensorMarketData\n\n" +
			"Opt out: reply \"opt out\"\n" +
			"Address: {{ address }}\n",
	},
	"C": {
		subject: "More 5★ reviews (without being pushy)",
		body: "Hi {{ first_or_team }},\n\n" +
			"We operate a clean review system for HVAC: monitoring + drafted replies + (optional) email-based review requests " +
			"with one follow-up max.\n\n" +
			"{{ personalization }}" +
			"If you want the setup link, reply \"YES\".\n\n" +
			"— Nova\n" +
			"TensorMarketData\n\n" +
			"Opt out: reply \"opt out\"\n" +
			"Address: {{ address }}\n",
	},
}

var templateEngine = liquid.NewEngine()

func pickVariant(i int) string {
	return variantOrder[i%len(variantOrder)]
}

func firstOrTeam(first string) string {
	if s := strings.TrimSpace(first); s != "" {
		return s
	}
	return "there"
}

// renderDraft renders one variant's subject and body. Personalization stays
// blank unless a reviewed snippet is supplied; blank is the safe default.
func renderDraft(variant, company, firstName, personalization, address string) (subject, body string, err error) {
	tpl, ok := emailTemplates[variant]
	if !ok {
		return "", "", fmt.Errorf("unknown draft variant %q", variant)
	}
	if strings.TrimSpace(company) == "" {
		company = "your company"
	}
	if personalization != "" {
		personalization += "\n"
	}

	bindings := map[string]interface{}{
		"company":         company,
		"first_or_team":   firstOrTeam(firstName),
		"personalization": personalization,
		"address":         address,
	}

	subject, err = templateEngine.ParseAndRenderString(tpl.subject, bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering subject for variant %s: %w", variant, err)
	}
	body, err = templateEngine.ParseAndRenderString(tpl.body, bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering body for variant %s: %w", variant, err)
	}
	return subject, body, nil
}
