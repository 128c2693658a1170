package types

import "time"

// Role identifies which side of the job board an account belongs to.
type Role string

const (
	RoleUnset     Role = ""
	RoleJobSeeker Role = "job_seeker"
	RoleEmployer  Role = "employer"
)

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r == RoleJobSeeker || r == RoleEmployer
}

// ParseRole converts a raw role string, returning RoleUnset for anything unknown.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleJobSeeker:
		return RoleJobSeeker
	case RoleEmployer:
		return RoleEmployer
	default:
		return RoleUnset
	}
}

// Identity is the authenticated account as seen by the client.
// It is cached locally and reconciled against the backend session.
type Identity struct {
	// ID is the identifier assigned by the auth service.
	ID string `json:"id"`

	// Email is the address the account signed up with.
	Email string `json:"email"`

	// Role is assigned at registration and never changes afterwards.
	Role Role `json:"role"`
}

// User represents a row of the users table.
// It mirrors the auth identity and keeps the registration details.
type User struct {
	// ID equals the auth service identity id.
	ID string `json:"id" db:"id"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Role is either "job_seeker" or "employer".
	Role Role `json:"role" db:"role"`

	// FirstName and LastName are captured for job seekers and employer contacts.
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Company fields are only populated for employers.
	CompanyName        string `json:"company_name" db:"company_name"`
	CompanyWebsite     string `json:"company_website" db:"company_website"`
	CompanyDescription string `json:"company_description" db:"company_description"`
	Industry           string `json:"industry" db:"industry"`

	// CreatedAt is the timestamp when the row was inserted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Identity returns the client-facing identity of the user row.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

// PendingRegistration stages registration input until the email address is verified.
type PendingRegistration struct {
	// ID is a ksuid assigned on insert.
	ID string `json:"id" db:"id"`

	// Email is the address awaiting verification.
	Email string `json:"email" db:"email"`

	// Role is the role requested at registration time.
	Role Role `json:"role" db:"role"`

	FirstName          string `json:"first_name" db:"first_name"`
	LastName           string `json:"last_name" db:"last_name"`
	Headline           string `json:"headline" db:"headline"`
	Bio                string `json:"bio" db:"bio"`
	CompanyName        string `json:"company_name" db:"company_name"`
	CompanyWebsite     string `json:"company_website" db:"company_website"`
	CompanyDescription string `json:"company_description" db:"company_description"`
	Industry           string `json:"industry" db:"industry"`

	// CreatedAt orders multiple attempts for the same email; the newest wins.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
