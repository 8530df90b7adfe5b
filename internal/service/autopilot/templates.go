package autopilot

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"github.com/tensormd/repops/internal/domain"
)

// Follow-up copy stays short and pressure-free: a bump, a close-out check,
// and a final note. The snooze follow-up reuses the final-note copy.
var followupTemplates = map[domain.TaskType]struct {
	subject string
	body    string
}{
	domain.TaskFollowup1: {
		subject: "Re: reviews for {{ company }}",
		body: "Hi — quick bump.\n" +
			"If you want TensorMarketData to handle review monitoring + drafted replies (approval for 1–3★), reply YES.\n" +
			"If not, reply opt out.\n",
	},
	domain.TaskFollowup2: {
		subject: "Should I close this out, {{ company }}?",
		body: "Hi — checking once more.\n" +
			"We can run approval-gated review replies so nothing sensitive posts without you.\n" +
			"Reply YES for onboarding, or opt out.\n",
	},
	domain.TaskFollowup3: {
		subject: "Last note — TensorMarketData",
		body: "Last note from me.\n" +
			"If reputation ops help this quarter, reply YES and I'll send the setup link.\n" +
			"Otherwise reply opt out.\n",
	},
}

var templateEngine = liquid.NewEngine()

func followupCopy(taskType domain.TaskType, company string) (subject, body string, err error) {
	if taskType == domain.TaskSnoozeFollowup {
		taskType = domain.TaskFollowup3
	}
	tpl, ok := followupTemplates[taskType]
	if !ok {
		return "", "", fmt.Errorf("no follow-up copy for task type %q", taskType)
	}
	if strings.TrimSpace(company) == "" {
		company = "your team"
	}

	bindings := map[string]interface{}{"company": company}
	subject, err = templateEngine.ParseAndRenderString(tpl.subject, bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering %s subject: %w", taskType, err)
	}
	body, err = templateEngine.ParseAndRenderString(tpl.body, bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering %s body: %w", taskType, err)
	}
	return subject, body, nil
}
