package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/types"
)

var jobRowColumns = []string{
	"id", "employer_id", "title", "company_name", "location", "description",
	"application_instructions", "employment_type", "experience_level",
	"salary_min", "salary_max", "salary_currency", "expires_at", "created_at", "updated_at",
}

var userRowColumns = []string{
	"id", "email", "role", "first_name", "last_name", "company_name",
	"company_website", "company_description", "industry", "created_at",
}

func jobsRouter(c *backend.Client) http.Handler {
	source := backend.NewStaticAccessor(c)
	r := chi.NewRouter()
	r.Route("/api/jobs", func(r chi.Router) {
		JobRouter(r, source, nil, RequireAuth(source))
	})
	return r
}

func addJobRow(rows *sqlmock.Rows, id, location string, at time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "e1", "Engineer "+id, "Acme", location, "A description", "Apply online",
		"Full-time", "Mid-level", nil, nil, "USD", nil, at, at)
}

func TestJobs_ListFiltersByLocation(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(jobRowColumns)
	addJobRow(rows, "1", "Berlin, DE", at)
	addJobRow(rows, "2", "Remote", at)
	addJobRow(rows, "3", "berlin", at)
	mock.ExpectQuery(`FROM job_postings jp\s+WHERE jp.expires_at IS NULL OR jp.expires_at > \$1\s+ORDER BY jp.updated_at DESC`).
		WillReturnRows(rows)

	rec := serve(jobsRouter(newClient(db, nil)), httptest.NewRequest(http.MethodGet, "/api/jobs?location=%20BERLIN%20", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []types.JobPosting
	decodeBody(t, rec, &jobs)
	require.Len(t, jobs, 2)
	require.Equal(t, "1", jobs[0].ID)
	require.Equal(t, "3", jobs[1].ID)
}

func TestJobs_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM job_postings jp\s+LEFT JOIN employer_profiles`).WithArgs("42").WillReturnError(sql.ErrNoRows)

	rec := serve(jobsRouter(newClient(db, nil)), httptest.NewRequest(http.MethodGet, "/api/jobs/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Job with ID 42 not found.", errorBody(t, rec))
}

func TestJobs_GetBackendError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM job_postings jp`).WithArgs("42").WillReturnError(errors.New("timeout"))

	rec := serve(jobsRouter(newClient(db, nil)), httptest.NewRequest(http.MethodGet, "/api/jobs/42", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJobs_GetWithEmployerName(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(append(append([]string{}, jobRowColumns...), "employer_name")).
		AddRow("7", "e1", "Engineer", "acme", "Berlin", "A description", "Apply online",
			"Full-time", "Mid-level", 50000.0, 70000.0, "EUR", nil, at, at, "Acme GmbH")
	mock.ExpectQuery(`LEFT JOIN employer_profiles`).WithArgs("7").WillReturnRows(rows)

	rec := serve(jobsRouter(newClient(db, nil)), httptest.NewRequest(http.MethodGet, "/api/jobs/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var job types.JobPostingDetail
	decodeBody(t, rec, &job)
	require.Equal(t, "Acme GmbH", job.EmployerName)
	require.NotNil(t, job.SalaryMax)
	require.Equal(t, 70000.0, *job.SalaryMax)
}

const validJobBody = `{
	"title": "Backend Engineer",
	"company_name": "Acme",
	"location": "Berlin",
	"description": "Build the job board services.",
	"application_instructions": "Send your CV to jobs@acme.io",
	"employment_type": "Full-time",
	"experience_level": "Senior-level",
	"salary_min": 60000,
	"salary_max": 80000
}`

func TestJobs_CreateRequiresToken(t *testing.T) {
	db, _ := newMockDB(t)

	rec := serve(jobsRouter(newClient(db, nil)), httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(validJobBody)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(validJobBody))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = serve(jobsRouter(newClient(db, nil)), req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobs_CreateAsEmployer(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users`).WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("e1", "jobs@acme.io", "employer", "", "", "Acme", "", "", "", time.Now()))
	mock.ExpectExec(`INSERT INTO job_postings`).WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(validJobBody))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "e1"))
	rec := serve(jobsRouter(newClient(db, nil)), req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var job types.JobPosting
	decodeBody(t, rec, &job)
	require.NotEmpty(t, job.ID)
	require.Equal(t, "e1", job.EmployerID)
	require.Equal(t, "USD", job.SalaryCurrency)
}

func TestJobs_CreateAsJobSeekerForbidden(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users`).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("s1", "s@b.co", "job_seeker", "S", "B", "", "", "", "", time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(validJobBody))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "s1"))
	rec := serve(jobsRouter(newClient(db, nil)), req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJobs_CreateRejectsSignedOutToken(t *testing.T) {
	ctx := context.Background()
	authDB, authMock := newMockDB(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	authMock.ExpectQuery(`FROM auth_local_users WHERE email = \$1`).WithArgs("s@b.co").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "confirmed_at"}).
			AddRow("s1", "s@b.co", string(hash), time.Now()))
	local := backend.NewLocalAuth(authDB, backend.LocalAuthOptions{Secret: testSecret})
	session, err := local.SignInWithPassword(ctx, "s@b.co", "secret123")
	require.NoError(t, err)

	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users`).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("s1", "s@b.co", "job_seeker", "S", "B", "", "", "", "", time.Now()))
	router := jobsRouter(newClient(db, local))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(validJobBody))
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := serve(router, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, local.SignOut(ctx, session.AccessToken))

	req = httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(validJobBody))
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec = serve(router, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobs_CreateValidation(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users`).WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("e1", "jobs@acme.io", "employer", "", "", "Acme", "", "", "", time.Now()))

	body := strings.Replace(validJobBody, `"salary_min": 60000`, `"salary_min": 90000`, 1)
	body = strings.Replace(body, `"title": "Backend Engineer"`, `"title": "B"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "e1"))
	rec := serve(jobsRouter(newClient(db, nil)), req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ValidationErrorResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "Job title must be at least 2 characters.", resp.Fields["title"])
	require.Equal(t, "Maximum salary must be greater than or equal to minimum salary", resp.Fields["salary_max"])
}

func TestJobs_BackendMissing(t *testing.T) {
	rec := serve(jobsRouter(nil), httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "Database connection not available. Please try again later.", errorBody(t, rec))
}
