package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/services"
)

const (
	maxMultipartMemory = 8 << 20
	formFieldFile      = "file"
)

// UploadHandler stores profile pictures, resumes and company logos.
type UploadHandler struct {
	source auth.ClientSource
	logger *zap.Logger
}

func NewUploadHandler(source auth.ClientSource, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{source: source, logger: logger}
}

// UploadRouter registers upload routes on the given router.
func UploadRouter(r chi.Router, source auth.ClientSource, logger *zap.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUploadHandler(source, logger)

	r.With(authMiddleware).Post("/{bucket}", handler.Upload)
}

// UploadResponse carries the public URL of a stored file.
type UploadResponse struct {
	URL string `json:"url"`
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bucket := chi.URLParam(r, "bucket")
	if !services.ValidBucket(bucket) {
		writeError(w, http.StatusBadRequest, "unknown upload bucket")
		return
	}

	client := h.source.Client(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, msgBackendMissing)
		return
	}
	if client.Storage == nil {
		writeError(w, http.StatusServiceUnavailable, "File uploads are not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, services.ErrFileTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	url, err := services.NewUploadService(client.Storage).Upload(r.Context(), bucket, userID, header.Filename, file, header.Size, contentType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, services.ErrEmptyFile):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("upload failed", zap.String("bucket", bucket), zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Error uploading file")
		}
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{URL: url})
}
