package profile

// Profile is the applicant's information consumed by application strategies.
// The orchestrator reads it and never mutates it mid-attempt; both drivers
// receive it as an explicit parameter so tests can scope profiles
// independently.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Location  string `json:"location"`

	LinkedIn string `json:"linkedin"`
	Website  string `json:"website"`

	WorkAuthorized      bool   `json:"workAuthorized"`
	RequiresSponsorship bool   `json:"requiresSponsorship"`
	StartDate           string `json:"startDate"` // "immediately", "two_weeks", "one_month", "flexible"
	SalaryExpectation   string `json:"salaryExpectation"`
	YearsExperience     int    `json:"yearsExperience"`

	ResumeText  string `json:"resumeText"`
	CoverLetter string `json:"coverLetter"`
}

// FullName returns the applicant's display name.
func (p Profile) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// MissingFields returns the names of required fields that are empty. An
// application attempt must not open a browser session while this is
// non-empty; the caller fails the entry with a descriptive error instead.
func (p Profile) MissingFields() []string {
	var missing []string
	if p.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if p.LastName == "" {
		missing = append(missing, "lastName")
	}
	if p.Email == "" {
		missing = append(missing, "email")
	}
	if p.ResumeText == "" {
		missing = append(missing, "resumeText")
	}
	return missing
}
