package types

import (
	"encoding/json"
	"errors"
	"net/mail"
	"net/url"
	"strings"
)

const minPasswordLength = 8

// Registration is the validated sign-up payload for one of the two account kinds.
// The concrete type is either JobSeekerRegistration or EmployerRegistration.
type Registration interface {
	Role() Role
	Credentials() Credentials
	Validate() error
	// Pending converts the profile part of the registration into a staged row.
	Pending() PendingRegistration
}

// Credentials are the email/password pair submitted to the auth service.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// JobSeekerRegistration is submitted from the job seeker sign-up form.
type JobSeekerRegistration struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Headline        string `json:"headline,omitempty"`
	Bio             string `json:"bio,omitempty"`
}

// EmployerRegistration is submitted from the employer sign-up form.
type EmployerRegistration struct {
	Email              string `json:"email"`
	Password           string `json:"password"`
	ConfirmPassword    string `json:"confirmPassword"`
	CompanyName        string `json:"companyName"`
	CompanyWebsite     string `json:"companyWebsite,omitempty"`
	CompanyDescription string `json:"companyDescription,omitempty"`
	Industry           string `json:"industry,omitempty"`
}

func (r JobSeekerRegistration) Role() Role { return RoleJobSeeker }

func (r JobSeekerRegistration) Credentials() Credentials {
	return Credentials{Email: strings.TrimSpace(r.Email), Password: r.Password}
}

func (r JobSeekerRegistration) Validate() error {
	verr := &ValidationError{}
	validateCredentials(verr, r.Email, r.Password, r.ConfirmPassword)
	if strings.TrimSpace(r.FirstName) == "" {
		verr.Add("firstName", "First name is required")
	}
	if strings.TrimSpace(r.LastName) == "" {
		verr.Add("lastName", "Last name is required")
	}
	return verr.OrNil()
}

func (r JobSeekerRegistration) Pending() PendingRegistration {
	return PendingRegistration{
		Email:     strings.TrimSpace(r.Email),
		Role:      RoleJobSeeker,
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Headline:  strings.TrimSpace(r.Headline),
		Bio:       strings.TrimSpace(r.Bio),
	}
}

func (r EmployerRegistration) Role() Role { return RoleEmployer }

func (r EmployerRegistration) Credentials() Credentials {
	return Credentials{Email: strings.TrimSpace(r.Email), Password: r.Password}
}

func (r EmployerRegistration) Validate() error {
	verr := &ValidationError{}
	validateCredentials(verr, r.Email, r.Password, r.ConfirmPassword)
	if strings.TrimSpace(r.CompanyName) == "" {
		verr.Add("companyName", "Company name is required")
	}
	if website := strings.TrimSpace(r.CompanyWebsite); website != "" && !isValidURL(website) {
		verr.Add("companyWebsite", "Please enter a valid URL")
	}
	return verr.OrNil()
}

func (r EmployerRegistration) Pending() PendingRegistration {
	return PendingRegistration{
		Email:              strings.TrimSpace(r.Email),
		Role:               RoleEmployer,
		CompanyName:        strings.TrimSpace(r.CompanyName),
		CompanyWebsite:     strings.TrimSpace(r.CompanyWebsite),
		CompanyDescription: strings.TrimSpace(r.CompanyDescription),
		Industry:           strings.TrimSpace(r.Industry),
	}
}

// DecodeRegistration reads a JSON payload tagged by its "role" field.
func DecodeRegistration(data []byte) (Registration, error) {
	var tag struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, errors.New("invalid request")
	}

	switch ParseRole(tag.Role) {
	case RoleJobSeeker:
		var reg JobSeekerRegistration
		if err := json.Unmarshal(data, &reg); err != nil {
			return nil, errors.New("invalid request")
		}
		return reg, nil
	case RoleEmployer:
		var reg EmployerRegistration
		if err := json.Unmarshal(data, &reg); err != nil {
			return nil, errors.New("invalid request")
		}
		return reg, nil
	default:
		return nil, &ValidationError{Fields: map[string]string{"role": "User role is required"}}
	}
}

func validateCredentials(verr *ValidationError, email, password, confirm string) {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.Add("email", "Please enter a valid email address")
	}
	if len(password) < minPasswordLength {
		verr.Add("password", "Password must be at least 8 characters")
	}
	if password != confirm {
		verr.Add("confirmPassword", "Passwords don't match")
	}
}

func isValidURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
