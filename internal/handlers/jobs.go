package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/services"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// JobHandler provides HTTP handlers for job postings.
type JobHandler struct {
	source auth.ClientSource
	logger *zap.Logger
}

func NewJobHandler(source auth.ClientSource, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{source: source, logger: logger}
}

// JobRouter registers job routes on the given router. Posting requires
// authMiddleware.
func JobRouter(r chi.Router, source auth.ClientSource, logger *zap.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := NewJobHandler(source, logger)

	r.Get("/", handler.ListJobs)
	r.With(authMiddleware).Post("/", handler.CreateJob)
	r.Get("/{jobID}", handler.GetJob)
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	jobs, err := svc.List(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		h.logger.Error("list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	job, err := svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Job with ID %s not found.", id))
			return
		}
		h.logger.Error("fetch job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var job types.JobPosting
	if err := decodeJSON(r, &job); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	created, err := svc.Create(r.Context(), userID, job)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		if errors.Is(err, services.ErrNotEmployer) {
			writeError(w, http.StatusForbidden, "Only employers can post jobs")
			return
		}
		h.logger.Error("create job", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to post job. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *JobHandler) service(w http.ResponseWriter, r *http.Request) (*services.JobService, bool) {
	client := h.source.Client(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, msgBackendMissing)
		return nil, false
	}
	return services.NewJobService(store.NewJobRepository(client.DB), store.NewUserRepository(client.DB), client.Events), true
}
