package types

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// EmploymentType enumerates the contract kinds a posting can offer.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "Full-time"
	EmploymentPartTime   EmploymentType = "Part-time"
	EmploymentContract   EmploymentType = "Contract"
	EmploymentInternship EmploymentType = "Internship"
	EmploymentTemporary  EmploymentType = "Temporary"
)

// ExperienceLevel enumerates the seniority a posting targets.
type ExperienceLevel string

const (
	ExperienceEntry  ExperienceLevel = "Entry-level"
	ExperienceMid    ExperienceLevel = "Mid-level"
	ExperienceSenior ExperienceLevel = "Senior-level"
)

// Supported salary currencies. USD is the default.
const (
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// JobPosting represents a job listing published by an employer.
// Postings are public, immutable once created, and hidden after ExpiresAt.
type JobPosting struct {
	// ID is a snowflake identifier encoded as a decimal string.
	ID string `json:"id" db:"id"`

	// EmployerID references the users row of the employer who posted it.
	EmployerID string `json:"employer_id" db:"employer_id"`

	// Title is the job title shown in listings.
	Title string `json:"title" db:"title"`

	// CompanyName is the company name as typed on the posting form.
	CompanyName string `json:"company_name" db:"company_name"`

	// Location is free text ("Berlin", "Remote"); listing filters match substrings of it.
	Location string `json:"location" db:"location"`

	// Description is the full job description.
	Description string `json:"description" db:"description"`

	// ApplicationInstructions tells candidates how to apply.
	ApplicationInstructions string `json:"application_instructions" db:"application_instructions"`

	EmploymentType  EmploymentType  `json:"employment_type" db:"employment_type"`
	ExperienceLevel ExperienceLevel `json:"experience_level" db:"experience_level"`

	// SalaryMin and SalaryMax are optional, positive, and ordered when both are set.
	SalaryMin      *float64 `json:"salary_min" db:"salary_min"`
	SalaryMax      *float64 `json:"salary_max" db:"salary_max"`
	SalaryCurrency string   `json:"salary_currency" db:"salary_currency"`

	// ExpiresAt hides the posting from listings once passed. Nil never expires.
	ExpiresAt *time.Time `json:"expires_at" db:"expires_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// JobPostingDetail is a posting joined with the employer's display name.
type JobPostingDetail struct {
	JobPosting
	EmployerName string `json:"employer_name" db:"employer_name"`
}

// Expired reports whether the posting should no longer be listed at now.
func (j JobPosting) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && !j.ExpiresAt.After(now)
}

// Normalize trims free-text fields and applies the default currency.
func (j *JobPosting) Normalize() {
	j.Title = strings.TrimSpace(j.Title)
	j.CompanyName = strings.TrimSpace(j.CompanyName)
	j.Location = strings.TrimSpace(j.Location)
	j.Description = strings.TrimSpace(j.Description)
	j.ApplicationInstructions = strings.TrimSpace(j.ApplicationInstructions)
	if j.SalaryCurrency == "" {
		j.SalaryCurrency = CurrencyUSD
	}
}

// Validate applies the posting form rules.
func (j JobPosting) Validate() error {
	verr := &ValidationError{}
	checkLength(verr, "title", "Job title", j.Title, 2, 100)
	checkLength(verr, "company_name", "Company name", j.CompanyName, 2, 100)
	checkLength(verr, "location", "Location", j.Location, 2, 100)
	checkLength(verr, "description", "Description", j.Description, 10, 5000)
	checkLength(verr, "application_instructions", "Application instructions", j.ApplicationInstructions, 10, 1000)

	switch j.EmploymentType {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContract, EmploymentInternship, EmploymentTemporary:
	default:
		verr.Add("employment_type", "Please select an employment type.")
	}
	switch j.ExperienceLevel {
	case ExperienceEntry, ExperienceMid, ExperienceSenior:
	default:
		verr.Add("experience_level", "Please select an experience level.")
	}
	switch j.SalaryCurrency {
	case CurrencyUSD, CurrencyEUR:
	default:
		verr.Add("salary_currency", "Unsupported currency")
	}

	if j.SalaryMin != nil && *j.SalaryMin <= 0 {
		verr.Add("salary_min", "Must be positive")
	}
	if j.SalaryMax != nil && *j.SalaryMax <= 0 {
		verr.Add("salary_max", "Must be positive")
	}
	if j.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMax < *j.SalaryMin {
		verr.Add("salary_max", "Maximum salary must be greater than or equal to minimum salary")
	}
	return verr.OrNil()
}

func checkLength(verr *ValidationError, field, label, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	if n < min {
		verr.Add(field, label+" must be at least "+strconv.Itoa(min)+" characters.")
		return
	}
	if n > max {
		verr.Add(field, label+" must be "+strconv.Itoa(max)+" characters or less.")
	}
}
