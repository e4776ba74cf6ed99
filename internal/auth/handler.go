package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/audit"
	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
	"github.com/coworkhub/coworkhub/internal/session"
)

// AuditRecorder receives login and logout events.
type AuditRecorder interface {
	Record(entry audit.Entry)
}

// LoginObserver counts login attempts.
type LoginObserver interface {
	ObserveLogin(result string)
}

// HandlerConfig wires the auth endpoints.
type HandlerConfig struct {
	Service       *Service
	Verifier      guard.TokenVerifier
	Audit         AuditRecorder
	Metrics       LoginObserver
	Logger        *slog.Logger
	SecureCookies bool
	// LoginLimit caps login attempts per client IP and minute.
	LoginLimit int
	Now        func() time.Time
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	cfg       HandlerConfig
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoginLimit <= 0 {
		cfg.LoginLimit = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{cfg: cfg, logger: logger, validator: validator.New()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(h.cfg.LoginLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooManyRequests)
		}),
	)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
}

type loginRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	CallbackURL string `json:"callbackUrl" validate:"omitempty,startswith=/"`
}

type loginResponse struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Redirect  string    `json:"redirect"`
	CSRFToken string    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type validationProblem struct {
	httpx.ProblemDetail
	Errors map[string]string `json:"errors"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.RespondError(w, err)
			return
		}
		problem := validationProblem{
			ProblemDetail: httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest},
			Errors:        make(map[string]string, len(fieldErrs)),
		}
		for _, fieldErr := range fieldErrs {
			problem.Errors[fieldErr.Field()] = fieldErr.Tag()
		}
		httpx.JSON(w, http.StatusBadRequest, problem)
		return
	}

	ip := clientIP(r)
	res, err := h.cfg.Service.Login(r.Context(), LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.observe("failure")
		h.record(r, audit.Entry{
			Action:  audit.ActionLogin,
			Success: false,
			Details: map[string]any{"email": req.Email},
		})
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.observe("success")
	h.record(r, audit.Entry{
		UserID:  res.User.ID,
		Action:  audit.ActionLogin,
		Success: true,
		Details: map[string]any{"role": string(res.User.Role), "session_id": res.Token.ID},
	})
	http.SetCookie(w, session.Cookie(res.Raw, res.Token.ExpiresAt, h.cfg.SecureCookies))
	httpx.JSON(w, http.StatusOK, loginResponse{
		UserID:    res.User.ID,
		Role:      string(res.User.Role),
		Redirect:  redirectAfterLogin(res.User.Role, req.CallbackURL),
		CSRFToken: res.Token.CSRFToken,
		ExpiresAt: res.Token.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, err := h.cfg.Verifier.Verify(r.Context(), r)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNoToken), errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrRevoked):
		http.SetCookie(w, session.ClearCookie(h.cfg.SecureCookies))
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		h.logger.Error("logout verify", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !guard.CheckCSRF(r, tok) {
		httpx.Problem(w, http.StatusForbidden, "CSRF Token Invalid", "")
		return
	}
	if err := h.cfg.Service.Logout(r.Context(), tok); err != nil {
		h.logger.Error("logout", slog.Any("error", err), slog.String("user_id", tok.UserID))
		httpx.RespondError(w, err)
		return
	}
	h.record(r, audit.Entry{
		UserID:  tok.UserID,
		Action:  audit.ActionLogout,
		Success: true,
		Details: map[string]any{"session_id": tok.ID},
	})
	http.SetCookie(w, session.ClearCookie(h.cfg.SecureCookies))
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Dashboard string    `json:"dashboard"`
	CSRFToken string    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	tok, err := h.cfg.Verifier.Verify(r.Context(), r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if reason, rejected := guard.SessionState(tok, h.cfg.Now()); rejected {
		status, title, code := guard.ProblemFor(reason)
		httpx.Problem(w, status, title, code)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		UserID:    tok.UserID,
		Role:      string(tok.Role),
		Dashboard: access.DashboardFor(tok.Role),
		CSRFToken: tok.CSRFToken,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (h *Handler) record(r *http.Request, entry audit.Entry) {
	if h.cfg.Audit == nil {
		return
	}
	entry.Resource = r.URL.Path
	entry.IP = clientIP(r)
	entry.UserAgent = r.UserAgent()
	h.cfg.Audit.Record(entry)
}

func (h *Handler) observe(result string) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ObserveLogin(result)
	}
}

// redirectAfterLogin honours a same-site callback and falls back to the role dashboard.
func redirectAfterLogin(role access.Role, callback string) string {
	if callback != "" && strings.HasPrefix(callback, "/") && !strings.HasPrefix(callback, "//") && !strings.Contains(callback, `\`) {
		return callback
	}
	return access.DashboardFor(role)
}

func clientIP(r *http.Request) string {
	ip, err := httprate.KeyByIP(r)
	if err != nil || ip == "" {
		return r.RemoteAddr
	}
	return ip
}
