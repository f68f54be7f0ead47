package strategy

import (
	"context"
	"fmt"

	"github.com/avelkin/applyq/internal/profile"
)

// fillIdentity fills the applicant's name and contact fields. Every intent
// is conditional; a missing field is a normal, non-fatal outcome.
func fillIdentity(ctx context.Context, act Actuator, p profile.Profile) error {
	intents := []string{
		fmt.Sprintf("If there is a first name field, fill it with %q", p.FirstName),
		fmt.Sprintf("If there is a last name field, fill it with %q", p.LastName),
		fmt.Sprintf("If there is a full name field, fill it with %q", p.FullName()),
		fmt.Sprintf("If there is an email field, fill it with %q", p.Email),
	}
	if p.Phone != "" {
		intents = append(intents, fmt.Sprintf("If there is a phone number field, fill it with %q", p.Phone))
	}
	return actAll(ctx, act, intents)
}

// fillCommon fills location and professional link fields when present.
func fillCommon(ctx context.Context, act Actuator, p profile.Profile) error {
	var intents []string
	if p.Location != "" {
		intents = append(intents, fmt.Sprintf("If there is a location or city field, fill it with %q", p.Location))
	}
	if p.LinkedIn != "" {
		intents = append(intents, fmt.Sprintf("If there is a LinkedIn profile field, fill it with %q", p.LinkedIn))
	}
	if p.Website != "" {
		intents = append(intents, fmt.Sprintf("If there is a website or portfolio field, fill it with %q", p.Website))
	}
	return actAll(ctx, act, intents)
}

// provideResume triggers the resume step: paste text where the form accepts
// it, or select an already-uploaded resume where the platform offers one.
func provideResume(ctx context.Context, act Actuator, p profile.Profile) error {
	_, err := act.Act(ctx,
		"If there is a resume upload or resume text field, provide the resume; "+
			"if the platform offers an existing stored resume, select it")
	return err
}

// fillCoverLetter fills the cover letter field if the form has one and the
// profile provides text.
func fillCoverLetter(ctx context.Context, act Actuator, p profile.Profile) error {
	if p.CoverLetter == "" {
		return nil
	}
	_, err := act.Act(ctx, "If there is a cover letter field, fill it with the provided cover letter text")
	return err
}

func actAll(ctx context.Context, act Actuator, intents []string) error {
	for _, intent := range intents {
		if _, err := act.Act(ctx, intent); err != nil {
			return err
		}
	}
	return nil
}
