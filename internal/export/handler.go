package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ServiceAPI interface {
	Shantytowns(ctx context.Context, viewer *user.User, filters []query.Filter) (*Workbook, error)
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

// ExportShantytowns handles GET /towns/export
func (h *Handler) ExportShantytowns(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	filters := query.FromValues(r.URL.Query(), shantytown.FilterKeys...)
	wb, err := h.Service.Shantytowns(r.Context(), viewer, filters)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	defer func() { _ = wb.Close() }()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wb.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := wb.WriteTo(w); err != nil {
		h.Logger.Error("failed to write export", "error", err)
	}
}
