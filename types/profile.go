package types

// JobSeekerProfile is the extended data of a job seeker account.
// JSON names follow the profile form; db names follow job_seeker_profiles.
type JobSeekerProfile struct {
	// UserID keys the row; profile writes upsert on it.
	UserID string `json:"userId,omitempty" db:"user_id"`

	FirstName         string `json:"firstName" db:"first_name"`
	LastName          string `json:"lastName" db:"last_name"`
	Email             string `json:"email" db:"email"`
	Headline          string `json:"professionalHeadline" db:"headline"`
	Bio               string `json:"bio" db:"bio"`
	PhoneNumber       string `json:"phoneNumber" db:"phone_number"`
	ProfilePictureURL string `json:"profilePictureUrl" db:"profile_picture_url"`
	ResumeURL         string `json:"resumeUrl" db:"resume_url"`
	WebsiteURL        string `json:"websiteUrl" db:"website_url"`
	LinkedinURL       string `json:"linkedinUrl" db:"linkedin_url"`
	GithubURL         string `json:"githubUrl" db:"github_url"`
}

// EmployerProfile is the extended data of an employer account.
type EmployerProfile struct {
	// UserID keys the row; profile writes upsert on it.
	UserID string `json:"userId,omitempty" db:"user_id"`

	CompanyName        string `json:"companyName" db:"company_name"`
	Email              string `json:"email" db:"email"`
	CompanyWebsite     string `json:"companyWebsite" db:"company_website"`
	Industry           string `json:"industry" db:"industry"`
	CompanyDescription string `json:"companyDescription" db:"company_description"`
	CompanyLogoURL     string `json:"companyLogoUrl" db:"company_logo_url"`
	CompanySize        string `json:"companySize" db:"company_size"`

	// Contact names are filled from the registration and not exposed by the profile form.
	ContactFirstName string `json:"-" db:"contact_first_name"`
	ContactLastName  string `json:"-" db:"contact_last_name"`
}
