package models

// UserProfile is the mock user record returned by the auth and profile
// endpoints.
type UserProfile struct {
	Id        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// OnboardingStep names match the frontend stepper.
const (
	StepPersonalInfo = "personal_info"
	StepEducation    = "education"
	StepEmployment   = "employment"
	StepIdentity     = "identity"
)

// OnboardingProgress is the per-user progress document held in the store.
type OnboardingProgress struct {
	CompletedSteps []string `json:"completed_steps"`
	CurrentStep    string   `json:"current_step"`
	PercentDone    int      `json:"percent_done"`
}

// MarkCompleted records step as done (idempotent) and recomputes the
// percentage over the four onboarding steps.
func (p *OnboardingProgress) MarkCompleted(step string) {
	for _, s := range p.CompletedSteps {
		if s == step {
			return
		}
	}
	p.CompletedSteps = append(p.CompletedSteps, step)
	p.PercentDone = len(p.CompletedSteps) * 100 / 4
	if p.PercentDone > 100 {
		p.PercentDone = 100
	}
}

// ProfileSections stores the raw section payloads saved during onboarding.
type ProfileSections struct {
	PersonalInfo *PersonalInfoRequest `json:"personal_info,omitempty"`
	Education    *EducationRequest    `json:"education,omitempty"`
	Employment   *EmploymentRequest   `json:"employment,omitempty"`
}
