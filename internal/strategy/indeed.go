package strategy

import (
	"context"
	"time"

	"github.com/avelkin/applyq/internal/platform"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

// Indeed drives Indeed's hosted apply flow. If the apply click leaves the
// Indeed domain the posting routes to an external site that cannot be
// auto-completed; the attempt terminates immediately as a redirect, a
// deliberate early exit rather than a failure to retry.
type Indeed struct {
	Defaults     DefaultAnswerFunc
	BudgetBuffer time.Duration
}

func (s *Indeed) Name() string { return "indeed" }

func (s *Indeed) Apply(ctx context.Context, act Actuator, job storage.JobLead, prof profile.Profile) (Outcome, error) {
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
		return timeoutOutcome(MethodIndeedApply, "starting the apply flow"), nil
	}

	if _, err := act.Act(ctx, "Click the Apply now button"); err != nil {
		return Outcome{}, err
	}

	loc, err := act.Location(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !platform.OnDomain(platform.Indeed, loc) {
		return Outcome{
			Method: MethodRedirect,
			Reason: "external application: apply redirected off the indeed domain",
		}, nil
	}

	if err := fillIdentity(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := provideResume(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := fillCommon(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := answerScreening(ctx, act, prof, defaults); err != nil {
		return Outcome{}, err
	}

	if act.NearBudget(buffer) {
		return timeoutOutcome(MethodIndeedApply, "submitting the application"), nil
	}
	if _, err := act.Act(ctx, "Click the submit application button"); err != nil {
		return Outcome{}, err
	}

	if text, ok := detectConfirmation(ctx, act); ok {
		return Outcome{Success: true, Method: MethodIndeedApply, Confirmation: text}, nil
	}
	return Outcome{
		Method: MethodIndeedApply,
		Reason: "no confirmation detected after submission",
	}, nil
}
