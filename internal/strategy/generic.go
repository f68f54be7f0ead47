package strategy

import (
	"context"
	"time"

	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

// GenericForm handles greenhouse, lever and unknown ATS forms: a single
// pass over the page, one submit, then confirmation detection.
type GenericForm struct {
	// Defaults handles screening questions with no profile-derived answer.
	// Nil selects ConservativeDefaults.
	Defaults DefaultAnswerFunc
	// BudgetBuffer overrides the default near-budget buffer (tests).
	BudgetBuffer time.Duration
}

func (s *GenericForm) Name() string { return "generic_form" }

func (s *GenericForm) Apply(ctx context.Context, act Actuator, job storage.JobLead, prof profile.Profile) (Outcome, error) {
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
		return timeoutOutcome(MethodForm, "filling the application form"), nil
	}

	if err := fillIdentity(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := fillCommon(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := provideResume(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := fillCoverLetter(ctx, act, prof); err != nil {
		return Outcome{}, err
	}
	if err := answerScreening(ctx, act, prof, defaults); err != nil {
		return Outcome{}, err
	}

	if act.NearBudget(buffer) {
		return timeoutOutcome(MethodForm, "submitting the application"), nil
	}
	if _, err := act.Act(ctx, "Click the submit application button"); err != nil {
		return Outcome{}, err
	}

	if text, ok := detectConfirmation(ctx, act); ok {
		return Outcome{Success: true, Method: MethodForm, Confirmation: text}, nil
	}
	return Outcome{
		Method: MethodForm,
		Reason: "no confirmation detected after submission",
	}, nil
}
