package shantytown

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

type ServiceAPI interface {
	FindAll(ctx context.Context, viewer *user.User, filters []query.Filter, feature permission.Feature) ([]View, error)
	FindOne(ctx context.Context, viewer *user.User, id int64) (*View, error)
	Create(ctx context.Context, actor *user.User, dto ShantytownDTO) (*View, error)
	Update(ctx context.Context, actor *user.User, id int64, dto ShantytownDTO) (*View, error)
	Close(ctx context.Context, actor *user.User, id int64, dto CloseDTO) (*View, error)
	Delete(ctx context.Context, actor *user.User, id int64) error
	Changelog(ctx context.Context, viewer *user.User, id int64) ([]ChangelogEntry, error)
	AddComment(ctx context.Context, actor *user.User, id int64, dto CommentDTO) (*CommentView, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetShantytowns handles GET /towns
func (h *Handler) GetShantytowns(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	filters := query.FromValues(r.URL.Query(), FilterKeys...)
	towns, err := h.Service.FindAll(r.Context(), viewer, filters, permission.FeatureList)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ShantytownsResponse{Shantytowns: towns})
}

// GetShantytown handles GET /towns/{id}
func (h *Handler) GetShantytown(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	town, err := h.Service.FindOne(r.Context(), viewer, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, town)
}

// CreateShantytown handles POST /towns
func (h *Handler) CreateShantytown(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	var dto ShantytownDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	town, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	logger.From(r.Context()).Info("shantytown created", "shantytown_id", town.ID)
	h.WriteJSON(w, http.StatusCreated, town)
}

// UpdateShantytown handles PUT /towns/{id}
func (h *Handler) UpdateShantytown(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto ShantytownDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	town, err := h.Service.Update(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, town)
}

// CloseShantytown handles POST /towns/{id}/close
func (h *Handler) CloseShantytown(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto CloseDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	town, err := h.Service.Close(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	logger.From(r.Context()).Info("shantytown closed", "shantytown_id", id, "status", town.Status)
	h.WriteJSON(w, http.StatusOK, town)
}

// DeleteShantytown handles DELETE /towns/{id}
func (h *Handler) DeleteShantytown(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.Delete(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetChangelog handles GET /towns/{id}/changelog
func (h *Handler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	entries, err := h.Service.Changelog(r.Context(), viewer, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ChangelogResponse{Changelog: entries})
}

// CreateComment handles POST /towns/{id}/comments
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto CommentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	comment, err := h.Service.AddComment(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, comment)
}
