package strategy

import (
	"context"
	"fmt"

	"github.com/avelkin/applyq/internal/profile"
)

// QuestionKind tags the fixed vocabulary of screening questions the
// orchestrator knows how to answer from the applicant profile.
type QuestionKind string

const (
	KindWorkAuth        QuestionKind = "workAuth"
	KindSponsorship     QuestionKind = "sponsorship"
	KindStartDate       QuestionKind = "startDate"
	KindSalary          QuestionKind = "salary"
	KindYearsExperience QuestionKind = "yearsExperience"
	KindFreeform        QuestionKind = "freeform"
)

// DefaultAnswerFunc handles screening questions that have no profile-derived
// answer. Strategies expose it as a field so tests can swap or disable the
// heuristic without touching the rest of the flow.
type DefaultAnswerFunc func(ctx context.Context, act Actuator) error

// screeningAnswer is one profile-resolved answer directive.
type screeningAnswer struct {
	Kind   QuestionKind
	Intent string
}

// resolveScreeningAnswers maps the applicant profile onto answer directives
// for the known question vocabulary.
func resolveScreeningAnswers(p profile.Profile) []screeningAnswer {
	authorized := "Yes"
	if !p.WorkAuthorized {
		authorized = "No"
	}
	sponsorship := "No"
	if p.RequiresSponsorship {
		sponsorship = "Yes"
	}

	answers := []screeningAnswer{
		{KindWorkAuth, fmt.Sprintf(
			"If there is a question about work authorization or legal right to work, answer %s", authorized)},
		{KindSponsorship, fmt.Sprintf(
			"If there is a question about requiring visa sponsorship, answer %s", sponsorship)},
	}
	if p.StartDate != "" {
		answers = append(answers, screeningAnswer{KindStartDate, fmt.Sprintf(
			"If there is a question about start date or availability, answer %s", startDateText(p.StartDate))})
	}
	if p.SalaryExpectation != "" {
		answers = append(answers, screeningAnswer{KindSalary, fmt.Sprintf(
			"If there is a question about salary expectations, answer %q", p.SalaryExpectation)})
	}
	if p.YearsExperience > 0 {
		answers = append(answers, screeningAnswer{KindYearsExperience, fmt.Sprintf(
			"If there is a question about years of experience, answer %d", p.YearsExperience)})
	}
	return answers
}

func startDateText(key string) string {
	switch key {
	case "immediately":
		return "immediately"
	case "two_weeks":
		return "in two weeks"
	case "one_month":
		return "in one month"
	default:
		return "flexible"
	}
}

// answerScreening fills every screening question it can resolve from the
// profile, then hands anything still unanswered to the defaults heuristic.
func answerScreening(ctx context.Context, act Actuator, p profile.Profile, defaults DefaultAnswerFunc) error {
	for _, a := range resolveScreeningAnswers(p) {
		if _, err := act.Act(ctx, a.Intent); err != nil {
			return err
		}
	}
	if defaults != nil {
		return defaults(ctx, act)
	}
	return nil
}

// ConservativeDefaults answers remaining required questions with no
// profile-derived value: affirmative for benefit-style yes/no questions,
// the first real option for required dropdowns. This heuristic can answer
// qualification questions in ways the applicant did not intend; it is kept
// in one place so it can be replaced wholesale.
func ConservativeDefaults(ctx context.Context, act Actuator) error {
	intents := []string{
		"For any remaining required yes/no question asking whether something is acceptable or beneficial, answer Yes",
		"For any remaining required dropdown without an obvious answer, select the first non-placeholder option",
	}
	return actAll(ctx, act, intents)
}
