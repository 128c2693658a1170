package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/types"
)

// AuthHandler exposes the registration and session flow of a web session.
type AuthHandler struct {
	sessions *SessionRegistry
	logger   *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(sessions *SessionRegistry, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{sessions: sessions, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Post("/verify", handler.Verify)
	r.Get("/session", handler.Session)
}

// RequireAuth verifies the bearer token issued by the auth service and
// injects the subject into context.
func RequireAuth(source auth.ClientSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			client := source.Client(r.Context())
			if client == nil {
				writeError(w, http.StatusServiceUnavailable, msgBackendMissing)
				return
			}

			subject, err := verifyToken(r.Context(), client, tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verifyToken checks the token locally when the signing secret is known and
// asks the auth service otherwise. Tokens revoked by sign-out are refused.
func verifyToken(ctx context.Context, client *backend.Client, tokenString string) (string, error) {
	if len(client.JWTSecret) > 0 {
		claims, err := backend.ParseAccessToken(tokenString, client.JWTSecret)
		if err != nil {
			return "", err
		}
		if rv, ok := client.Auth.(backend.Revoker); ok && rv.Revoked(claims.ID) {
			return "", errors.New("token revoked")
		}
		return claims.Subject, nil
	}
	user, err := client.Auth.GetUser(ctx, tokenString)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(user.ID) == "" {
		return "", errors.New("missing subject")
	}
	return user.ID, nil
}

// Register signs up a job seeker or employer, selected by the "role" field.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	reg, err := types.DecodeRegistration(body)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	holder, err := h.sessions.Holder(w, r)
	if err != nil {
		h.logger.Error("start session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	res, err := holder.Register(r.Context(), reg)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

// Login signs in with email and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	holder, err := h.sessions.Holder(w, r)
	if err != nil {
		h.logger.Error("start session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	if _, err := holder.Login(r.Context(), req.Email, req.Password); err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holder.Snapshot())
}

// Logout ends the session. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	holder, err := h.sessions.Holder(w, r)
	if err != nil {
		h.logger.Warn("start session", zap.Error(err))
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out"})
		return
	}
	holder.Logout(r.Context())
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out"})
}

// Verify completes a pending registration with the emailed code.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	holder, err := h.sessions.Holder(w, r)
	if err != nil {
		h.logger.Error("start session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	res, err := holder.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

// Session returns the auth state of the current session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	holder, err := h.sessions.Holder(w, r)
	if err != nil {
		h.logger.Error("start session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, holder.Snapshot())
}

// Callback completes sign-up from the emailed link and redirects to the
// page matching the account role.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	holder, err := h.sessions.Holder(w, r)
	if err != nil {
		h.logger.Error("start session", zap.Error(err))
		redirectWithMessage(w, r, "/login", "An unexpected error occurred. Please try again.", "error")
		return
	}

	res, err := holder.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Warn("auth callback failed", zap.Error(err))
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNetwork):
			redirectWithMessage(w, r, "/login", "Error authenticating. Please try again.", "error")
		case errors.Is(err, auth.ErrRemoteFailure):
			redirectWithMessage(w, r, "/login", "Error creating user account. Please contact support.", "error")
		default:
			redirectWithMessage(w, r, "/login", "An unexpected error occurred. Please try again.", "error")
		}
		return
	}

	employer := res.Identity != nil && res.Identity.Role == types.RoleEmployer
	target := "/"
	if employer {
		target = "/post-job"
	}

	switch {
	case !res.Created:
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	case res.Warning != nil && employer:
		redirectWithMessage(w, r, target, "Your account was created, but there was an issue with your employer profile. Please complete your profile.", "warning")
	case res.Warning != nil:
		redirectWithMessage(w, r, target, "Your account was created, but there was an issue with your profile. Please complete your profile.", "warning")
	case employer:
		redirectWithMessage(w, r, target, "Your employer account has been successfully created!", "success")
	default:
		redirectWithMessage(w, r, target, "Your job seeker account has been successfully created!", "success")
	}
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	if writeValidation(w, err) {
		return
	}

	var rl *auth.RateLimitedError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		status = http.StatusTooManyRequests
	case errors.Is(err, auth.ErrConfigurationMissing):
		status = http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrAlreadyRegistered):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrRegistrationFailed):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrNetwork), errors.Is(err, auth.ErrRemoteFailure):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("auth request failed", zap.Error(err))
	}
	writeError(w, status, auth.UserMessage(err))
}

func redirectWithMessage(w http.ResponseWriter, r *http.Request, path, message, status string) {
	q := url.Values{}
	q.Set("message", message)
	q.Set("status", status)
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusTemporaryRedirect)
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResultResponse is the payload of register and verify.
type ResultResponse struct {
	Outcome auth.Outcome    `json:"outcome"`
	User    *types.Identity `json:"user,omitempty"`
	Notice  string          `json:"notice"`
	Warning string          `json:"warning,omitempty"`
}

func newResultResponse(res auth.Result) ResultResponse {
	resp := ResultResponse{Outcome: res.Outcome, User: res.Identity, Notice: res.Notice}
	if res.Warning != nil {
		resp.Warning = auth.UserMessage(res.Warning)
	}
	return resp
}
