package api

import (
	"net/http"

	"github.com/okian/podium/internal/domain/deliverylog"
)

const defaultLogLimit = 50

type purgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// DeliveriesHandler serves the delivery and activity logs.
type DeliveriesHandler struct {
	deps     DeliveryLog
	maxLimit int
}

// NewDeliveriesHandler creates a new deliveries handler.
func NewDeliveriesHandler(deps DeliveryLog, maxLimit int) *DeliveriesHandler {
	return &DeliveriesHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /deliveries?limit=N, newest first.
func (h *DeliveriesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_deliveries"
	n, err := parseLimit(r, defaultLogLimit, h.maxLimit)
	if err != nil {
		writeError(w, NewKind(op, err))
		return
	}
	records, err := h.deps.Deliveries(r.Context(), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if records == nil {
		records = []deliverylog.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleActivity handles GET /activity?limit=N, newest first.
func (h *DeliveriesHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_activity"
	n, err := parseLimit(r, defaultLogLimit, h.maxLimit)
	if err != nil {
		writeError(w, NewKind(op, err))
		return
	}
	activity, err := h.deps.Activity(r.Context(), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if activity == nil {
		activity = []deliverylog.Activity{}
	}
	writeJSON(w, http.StatusOK, activity)
}

// HandlePurge handles DELETE /deliveries.
func (h *DeliveriesHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	const op = "api.purge_deliveries"
	n, err := h.deps.PurgeDeliveries(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, purgeResponse{Deleted: n})
}
