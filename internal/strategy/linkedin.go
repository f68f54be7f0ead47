package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avelkin/applyq/internal/platform"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

// maxEasyApplySteps caps the Easy Apply multi-page loop. Exceeding it is a
// failure: the cap is a fail-safe against an unbounded or looping form.
const maxEasyApplySteps = 10

// reviewMarkers are the textual signals that the current Easy Apply page is
// the final review/submit step.
var reviewMarkers = []string{
	"review your application",
	"submit application",
	"submit your application",
}

// LinkedIn drives the Easy Apply multi-step flow. Non-Easy-Apply postings
// that redirect off linkedin.com are terminated as redirects, same rule as
// Indeed.
type LinkedIn struct {
	Defaults     DefaultAnswerFunc
	BudgetBuffer time.Duration
}

func (s *LinkedIn) Name() string { return "linkedin" }

func (s *LinkedIn) Apply(ctx context.Context, act Actuator, job storage.JobLead, prof profile.Profile) (Outcome, error) {
	buffer := s.BudgetBuffer
	if buffer <= 0 {
		buffer = defaultBudgetBuffer
	}
	defaults := s.Defaults
	if defaults == nil {
		defaults = ConservativeDefaults
	}

	if err := act.Navigate(ctx, job.ApplyURL); err != nil {
		return Outcome{}, err
	}
	if act.NearBudget(buffer) {
		return timeoutOutcome(MethodEasyApply, "starting the apply flow"), nil
	}

	easyApply, err := act.Act(ctx, "Click the Easy Apply button")
	if err != nil {
		return Outcome{}, err
	}
	if !easyApply {
		applied, err := act.Act(ctx, "Click the Apply button")
		if err != nil {
			return Outcome{}, err
		}
		if !applied {
			return Outcome{
				Method: MethodEasyApply,
				Reason: "no apply control found on the posting",
			}, nil
		}
		loc, err := act.Location(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if !platform.OnDomain(platform.LinkedIn, loc) {
			return Outcome{
				Method: MethodRedirect,
				Reason: "external application: apply redirected off the linkedin domain",
			}, nil
		}
	}

	submitted := false
	for step := 0; step < maxEasyApplySteps; step++ {
		if act.NearBudget(buffer) {
			return timeoutOutcome(MethodEasyApply, fmt.Sprintf("easy apply step %d", step+1)), nil
		}

		atReview, err := s.atReviewStep(ctx, act)
		if err != nil {
			return Outcome{}, err
		}
		if atReview {
			if _, err := act.Act(ctx, "Click the Submit application button"); err != nil {
				return Outcome{}, err
			}
			submitted = true
			break
		}

		if err := fillIdentity(ctx, act, prof); err != nil {
			return Outcome{}, err
		}
		if err := provideResume(ctx, act, prof); err != nil {
			return Outcome{}, err
		}
		if err := answerScreening(ctx, act, prof, defaults); err != nil {
			return Outcome{}, err
		}

		advanced, err := act.Act(ctx, "Click the Next or Continue button")
		if err != nil {
			return Outcome{}, err
		}
		if !advanced {
			// No advance control left: assume this is the last page.
			if _, err := act.Act(ctx, "Click the Submit application button"); err != nil {
				return Outcome{}, err
			}
			submitted = true
			break
		}
	}

	if !submitted {
		return Outcome{
			Method: MethodEasyApply,
			Reason: fmt.Sprintf("easy apply form did not reach submission within %d steps", maxEasyApplySteps),
		}, nil
	}

	if text, ok := detectConfirmation(ctx, act); ok {
		return Outcome{Success: true, Method: MethodEasyApply, Confirmation: text}, nil
	}
	return Outcome{
		Method: MethodEasyApply,
		Reason: "no confirmation detected after submission",
	}, nil
}

// atReviewStep checks the current page text for final review/submit markers.
func (s *LinkedIn) atReviewStep(ctx context.Context, act Actuator) (bool, error) {
	text, err := act.VisibleText(ctx)
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(text)
	for _, marker := range reviewMarkers {
		if strings.Contains(lower, marker) {
			return true, nil
		}
	}
	return false, nil
}
