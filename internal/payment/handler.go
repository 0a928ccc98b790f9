package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errors "github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/common/validation"
	"github.com/carnimore/checkout/internal/transport"
	"github.com/go-chi/chi"
)

const defaultMaxPostbackBytes = 64 << 10

type InitiatorAPI interface {
	Initiate(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}

type IngestorAPI interface {
	Ingest(ctx context.Context, body []byte) (*Acknowledgement, error)
}

type StatusAPI interface {
	Status(ctx context.Context, orderID string, wait time.Duration) (*StatusView, error)
}

type Handler struct {
	*transport.BaseHandler
	Initiator        InitiatorAPI
	Ingestor         IngestorAPI
	Statuses         StatusAPI
	MaxPostbackBytes int64
}

func NewHandler(base *transport.BaseHandler, initiator InitiatorAPI, ingestor IngestorAPI, statuses StatusAPI, maxPostbackBytes int64) *Handler {
	if maxPostbackBytes <= 0 {
		maxPostbackBytes = defaultMaxPostbackBytes
	}
	return &Handler{
		BaseHandler:      base,
		Initiator:        initiator,
		Ingestor:         ingestor,
		Statuses:         statuses,
		MaxPostbackBytes: maxPostbackBytes,
	}
}

// Charge handles POST /api/v1/payments/charge
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("Charge: failed to parse request body", "error", err)
		h.writeFailure(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Initiator.Initiate(r.Context(), &req)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ChargeResponse{
		Success: true,
		OrderID: result.OrderID,
		Message: result.Message,
	})
}

// Postback handles POST /api/v1/payments/postback. The body is read raw
// because the gateway may send JSON or delimited text under any content type.
func (h *Handler) Postback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxPostbackBytes))
	if err != nil {
		h.Logger.Warn("Postback: failed to read body", "error", err)
		h.writeFailure(w, errors.NewFormatError("postback body could not be read", errors.ErrCodePostbackUnrecognized))
		return
	}

	ack, err := h.Ingestor.Ingest(r.Context(), body)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PostbackResponse{
		Success:       true,
		Status:        ack.Status,
		Message:       ack.Message,
		TransactionID: ack.TransactionID,
		AuthCode:      ack.AuthCode,
		OrderID:       ack.OrderID,
	})
}

// Status handles GET /api/v1/orders/{orderID}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if validation.ValidateOrderID(orderID) != nil {
		h.writeNotFound(w, orderID)
		return
	}

	view, err := h.Statuses.Status(r.Context(), orderID, parseWait(r.URL.Query().Get("wait")))
	if err != nil {
		if stderrors.Is(err, errors.ErrOrderNotFound) {
			h.writeNotFound(w, orderID)
			return
		}
		h.writeFailure(w, err)
		return
	}

	var processorResponse json.RawMessage
	if len(view.ProcessorResponse) > 0 {
		processorResponse = json.RawMessage(view.ProcessorResponse)
	}

	h.WriteJSON(w, http.StatusOK, StatusResponse{
		Success:           true,
		Status:            view.Status,
		OrderID:           view.OrderID,
		ProcessorResponse: processorResponse,
	})
}

func (h *Handler) writeNotFound(w http.ResponseWriter, orderID string) {
	h.WriteJSON(w, http.StatusNotFound, NotFoundResponse{
		Success: false,
		Message: "order not found",
		OrderID: orderID,
	})
}

// writeFailure answers every charge and postback failure with HTTP 500; the
// gateway and storefront branch on the error code, not the status.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	resp := FailureResponse{
		Success: false,
		Message: "internal server error",
		Error:   "INTERNAL_ERROR",
	}
	if appErr, ok := errors.IsAppError(err); ok {
		resp.Message = appErr.GetDetailedMessage()
		resp.Error = string(appErr.Code)
		if appErr.Type == errors.ErrorTypeInternal || appErr.Type == errors.ErrorTypePersistence {
			h.Logger.Error("payment request failed", "code", appErr.Code, "error", err)
		}
	} else {
		h.Logger.Error("payment request failed", "error", err)
	}
	h.WriteJSON(w, http.StatusInternalServerError, resp)
}

// parseWait accepts a Go duration ("10s") or whole seconds ("10").
func parseWait(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return 0
}
