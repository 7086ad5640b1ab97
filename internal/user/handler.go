package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/unixtime"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context, viewer *User, filters []query.Filter) ([]*User, error)
	Get(ctx context.Context, viewer *User, id int64) (*User, error)
	CreateAccess(ctx context.Context, actor *User, id int64) (*Access, error)
	ActivateAccess(ctx context.Context, accessID int64, dto ActivateAccessDTO) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	baseURL string
}

func NewHandler(svc ServiceAPI, baseURL string) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		baseURL:     baseURL,
	}
}

// RequireUser returns the authenticated user or writes a 401.
func RequireUser(h *transport.BaseHandler, w http.ResponseWriter, r *http.Request) (*User, bool) {
	u, ok := FromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrInvalidToken)
		return nil, false
	}
	return u, true
}

// GetCurrentUser handles GET /me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, u.ToView(true))
}

// GetUsers handles GET /users
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	viewer, ok := RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	filters := query.FromValues(r.URL.Query(), "organization", "status", "role", "departement")
	users, err := h.Service.List(r.Context(), viewer, filters)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := UsersResponse{Users: make([]View, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, u.ToView(false))
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	viewer, ok := RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	u, err := h.Service.Get(r.Context(), viewer, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.ToView(false))
}

// CreateAccess handles POST /users/{id}/accesses
func (h *Handler) CreateAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	access, err := h.Service.CreateAccess(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, AccessResponse{
		ID:        access.ID,
		UserID:    access.UserID,
		Link:      fmt.Sprintf("%s/activer-mon-compte/%d?token=%s", h.baseURL, access.ID, access.Token),
		ExpiresAt: unixtime.Seconds(access.ExpiresAt),
	})
}

// ActivateAccess handles POST /accesses/{id}/activate
func (h *Handler) ActivateAccess(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto ActivateAccessDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.ActivateAccess(r.Context(), id, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
