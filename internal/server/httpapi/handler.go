// Package httpapi is the HTTP edge of credport: auth endpoints, profile and
// reputation lookups, and the middleware that guards them.
package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/observability"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/models"
	"github.com/dmitrijs2005/credport/internal/server/reputation"
	"github.com/dmitrijs2005/credport/internal/server/services"
)

type Handler struct {
	users      *services.UserService
	authority  *auth.Authority
	reputation *reputation.Service
	logger     logging.Logger
}

func NewHandler(users *services.UserService, authority *auth.Authority, rep *reputation.Service, logger logging.Logger) *Handler {
	return &Handler{
		users:      users,
		authority:  authority,
		reputation: rep,
		logger:     logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type userView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type authResponse struct {
	User userView `json:"user"`
	*auth.TokenPair
}

func viewOf(u *models.User) userView {
	v := userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		v.CreatedAt = &created
	}
	return v
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body services.RegisterInput
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	u, pair, err := h.users.Register(r.Context(), body)
	if err != nil {
		var verr *common.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidationError(w, verr.Problems)
		case errors.Is(err, common.ErrorAlreadyExists):
			writeError(w, http.StatusConflict, "username already taken")
		default:
			observability.CaptureError(err, map[string]string{"handler": "register"})
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	h.recordReputation(r, u.ID, reputation.PointsRegistered)
	writeJSON(w, http.StatusCreated, authResponse{User: viewOf(u), TokenPair: pair})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	u, pair, err := h.users.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		observability.CaptureError(err, map[string]string{"handler": "login"})
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	h.recordReputation(r, u.ID, reputation.PointsLogin)
	writeJSON(w, http.StatusOK, authResponse{User: viewOf(u), TokenPair: pair})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	pair, err := h.authority.Rotate(strings.TrimSpace(body.RefreshToken))
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
			return
		}
		observability.CaptureError(err, map[string]string{"handler": "refresh"})
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the tokens in the body; the bearer token is used when the
// body names no access token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body logoutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	access := strings.TrimSpace(body.AccessToken)
	if access == "" {
		access = bearerToken(r)
	}
	h.authority.Logout(access, strings.TrimSpace(body.RefreshToken))

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	writeJSON(w, http.StatusOK, h.authority.Verify(strings.TrimSpace(body.Token)))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	payload, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
		return
	}

	// demo users have no stored profile
	if payload.UserID == 0 {
		writeJSON(w, http.StatusOK, userView{Username: payload.Username, Role: payload.Role})
		return
	}

	u, err := h.users.Me(r.Context(), payload.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		observability.CaptureError(err, map[string]string{"handler": "me"})
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, viewOf(u))
}

func (h *Handler) ReputationMe(w http.ResponseWriter, r *http.Request) {
	payload, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
		return
	}

	score, err := h.reputation.Get(r.Context(), payload.UserID)
	if err != nil {
		observability.CaptureError(err, map[string]string{"handler": "reputation"})
		writeError(w, http.StatusServiceUnavailable, "reputation unavailable")
		return
	}

	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recordReputation(r *http.Request, userID int64, points int64) {
	if _, err := h.reputation.Record(r.Context(), userID, points); err != nil {
		h.logger.Warn(r.Context(), "reputation not recorded", "user_id", userID, "error", err)
	}
}
