package plan

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

type ServiceAPI interface {
	FindAll(ctx context.Context, viewer *user.User, filters []query.Filter) ([]View, error)
	FindOne(ctx context.Context, viewer *user.User, id int64) (*View, error)
	Create(ctx context.Context, actor *user.User, dto CreateDTO) (*View, error)
	AddState(ctx context.Context, actor *user.User, id int64, dto StateDTO) (*View, error)
	Close(ctx context.Context, actor *user.User, id int64, dto CloseDTO) (*View, error)
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

// GetPlans handles GET /plans
func (h *Handler) GetPlans(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	plans, err := h.Service.FindAll(r.Context(), viewer, query.FromValues(r.URL.Query(), FilterKeys...))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PlansResponse{Plans: plans})
}

// GetPlan handles GET /plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	plan, err := h.Service.FindOne(r.Context(), viewer, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, plan)
}

// CreatePlan handles POST /plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	var dto CreateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	plan, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	logger.From(r.Context()).Info("plan created", "plan_id", plan.ID)
	h.WriteJSON(w, http.StatusCreated, plan)
}

// AddState handles POST /plans/{id}/states
func (h *Handler) AddState(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto StateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	plan, err := h.Service.AddState(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, plan)
}

// ClosePlan handles POST /plans/{id}/close
func (h *Handler) ClosePlan(w http.ResponseWriter, r *http.Request) {
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

	plan, err := h.Service.Close(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	logger.From(r.Context()).Info("plan closed", "plan_id", id)
	h.WriteJSON(w, http.StatusOK, plan)
}
