package stats

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

const (
	dateLayout    = "2006-01-02"
	defaultWindow = 30 * 24 * time.Hour
)

type ServiceAPI interface {
	Get(ctx context.Context, viewer *user.User, period Period) (*Stats, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	now     func() time.Time
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		now:         time.Now,
	}
}

// GetStats handles GET /stats?from=2006-01-02&to=2006-01-02
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	viewer, ok := user.RequireUser(h.BaseHandler, w, r)
	if !ok {
		return
	}

	period, err := h.parsePeriod(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	stats, err := h.Service.Get(r.Context(), viewer, period)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

// parsePeriod reads an inclusive day range. Without bounds it covers the last 30 days.
func (h *Handler) parsePeriod(r *http.Request) (Period, error) {
	fields := internal.FieldErrors{}
	today := h.now().UTC().Truncate(24 * time.Hour)

	period := Period{From: today.Add(-defaultWindow), To: today.Add(24 * time.Hour)}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			fields.Add("from", "La date doit être au format AAAA-MM-JJ")
		}
		period.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			fields.Add("to", "La date doit être au format AAAA-MM-JJ")
		}
		period.To = to.Add(24 * time.Hour)
	}
	if !fields.HasErrors() && !period.From.Before(period.To) {
		fields.Add("to", "La date de fin ne peut pas être antérieure à la date de début")
	}
	if fields.HasErrors() {
		return Period{}, internal.NewValidationError(fields)
	}
	return period, nil
}
