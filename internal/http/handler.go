package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/gateway"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/money"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/services"
)

type Handler struct {
	Payments      *services.PaymentService
	WebhookSecret string
}

func NewHandler(payments *services.PaymentService, webhookSecret string) *Handler {
	return &Handler{Payments: payments, WebhookSecret: webhookSecret}
}

type createPaymentRequest struct {
	ContractID string          `json:"contractId"`
	AmountNgn  decimal.Decimal `json:"amountNgn"`
	Email      string          `json:"email"`
	Reference  string          `json:"reference"`
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	driverID := r.Header.Get("X-User-Id")
	if driverID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	amountKobo, err := money.KoboFromNGN(req.AmountNgn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.Payments.CreatePayment(r.Context(), req.ContractID, driverID, amountKobo, req.Email, req.Reference)
	if err != nil {
		h.writeServiceError(w, err, "create payment failed")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	driverID := r.Header.Get("X-User-Id")
	if driverID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = &t
	}

	snaps, err := h.Payments.ListPayments(r.Context(), driverID, r.URL.Query().Get("contractId"), limit, since)
	if err != nil {
		h.writeServiceError(w, err, "list payments failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": snaps})
}

func (h *Handler) GetActiveContract(w http.ResponseWriter, r *http.Request) {
	driverID := r.Header.Get("X-User-Id")
	if driverID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	snap, err := h.Payments.GetActiveContract(r.Context(), driverID)
	if err != nil {
		h.writeServiceError(w, err, "get contract failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no contract for driver")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Webhook is the gateway's at-least-once notification callback. Replays and
// concurrent deliveries of the same reference are expected and safe.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !gateway.VerifySignature(h.WebhookSecret, body, r.Header.Get(gateway.SignatureHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event gateway.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if event.Event != gateway.EventChargeSuccess {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if event.Data.Reference == "" {
		writeError(w, http.StatusBadRequest, "missing reference")
		return
	}
	if event.Data.AmountKobo <= 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	verified := event.Data.AmountKobo
	result, err := h.Payments.Confirm(r.Context(), event.Data.Reference, services.ConfirmOptions{
		VerifiedAmountKobo: &verified,
		Channel:            event.Data.Channel,
		Metadata:           event.Data.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, err, "confirm failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type failureRequest struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Failed is the gateway's failure callback; replays after a terminal status
// are no-ops.
func (h *Handler) Failed(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !gateway.VerifySignature(h.WebhookSecret, body, r.Header.Get(gateway.SignatureHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req failureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.Payments.MarkFailed(r.Context(), req.Reference, req.Reason); err != nil {
		h.writeServiceError(w, err, "mark failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var failed *services.PaymentFailedError
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrContractNotFound),
		errors.Is(err, services.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrContractNotActive),
		errors.Is(err, services.ErrContractSettled),
		errors.Is(err, services.ErrAmountExceedsBalance),
		errors.Is(err, services.ErrDuplicateReference):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &failed):
		writeError(w, http.StatusConflict, failed.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
