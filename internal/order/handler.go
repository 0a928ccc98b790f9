package order

import (
	"context"
	"net/http"
	"strconv"

	"github.com/carnimore/checkout/internal/transport"
)

type ServiceAPI interface {
	ListOrders(ctx context.Context, status string, offset, limit int) (*OrdersResponse, error)
	Stats(ctx context.Context) (*StatsResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// ListOrders serves GET /admin/orders?status=&offset=&limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	resp, err := h.Service.ListOrders(r.Context(), query.Get("status"), offset, limit)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Stats(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
