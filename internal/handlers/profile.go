package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/services"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// ProfileHandler provides HTTP handlers for job seeker and employer profiles.
type ProfileHandler struct {
	source auth.ClientSource
	logger *zap.Logger
}

func NewProfileHandler(source auth.ClientSource, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{source: source, logger: logger}
}

// ProfileRouter registers profile routes on the given router.
func ProfileRouter(r chi.Router, source auth.ClientSource, logger *zap.Logger) {
	handler := NewProfileHandler(source, logger)

	r.Get("/job-seeker", handler.GetJobSeeker)
	r.Post("/job-seeker", handler.SaveJobSeeker)
	r.Get("/employer", handler.GetEmployer)
	r.Post("/employer", handler.SaveEmployer)
}

func (h *ProfileHandler) GetJobSeeker(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	profile, err := svc.JobSeeker(r.Context(), userID)
	if err != nil {
		h.logger.Error("fetch job seeker profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching job seeker profile")
		return
	}
	profile.UserID = ""
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) SaveJobSeeker(w http.ResponseWriter, r *http.Request) {
	var profile types.JobSeekerProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	profile.UserID = strings.TrimSpace(profile.UserID)
	if profile.UserID == "" {
		writeError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	if err := svc.SaveJobSeeker(r.Context(), profile); err != nil {
		h.logger.Error("update job seeker profile", zap.String("user_id", profile.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgProfileUpdated})
}

func (h *ProfileHandler) GetEmployer(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	profile, err := svc.Employer(r.Context(), userID)
	if err != nil {
		h.logger.Error("fetch employer profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching employer profile")
		return
	}
	profile.UserID = ""
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) SaveEmployer(w http.ResponseWriter, r *http.Request) {
	var profile types.EmployerProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	profile.UserID = strings.TrimSpace(profile.UserID)
	if profile.UserID == "" {
		writeError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	if err := svc.SaveEmployer(r.Context(), profile); err != nil {
		h.logger.Error("update employer profile", zap.String("user_id", profile.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgProfileUpdated})
}

func (h *ProfileHandler) service(w http.ResponseWriter, r *http.Request) (*services.ProfileService, bool) {
	client := h.source.Client(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, msgBackendMissing)
		return nil, false
	}
	return newProfileService(client), true
}

func newProfileService(c *backend.Client) *services.ProfileService {
	return services.NewProfileService(store.NewProfileRepository(c.DB), store.NewUserRepository(c.DB))
}
