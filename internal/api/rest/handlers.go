// Package rest exposes the billing engine over HTTP. Routes are registered on
// a stdlib mux with method patterns; all domain logic stays in the services.
package rest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/service/invoicing"
	"github.com/rentwise/lease-billing-backend/internal/service/reconciliation"
	"github.com/rentwise/lease-billing-backend/internal/service/scheduler"
)

const dateLayout = "2006-01-02"

// Handler carries the services behind the HTTP surface.
type Handler struct {
	invoicing      invoicing.Service
	reconciliation reconciliation.Service
	scheduler      *scheduler.Service
	invoices       invoicing.InvoiceRepository
	currency       string
	logger         *slog.Logger
	validate       *validator.Validate
	readiness      func(r *http.Request) error
}

// NewHandler creates the HTTP handler set
func NewHandler(
	inv invoicing.Service,
	rec reconciliation.Service,
	sched *scheduler.Service,
	invoices invoicing.InvoiceRepository,
	currency string,
	logger *slog.Logger,
	readiness func(r *http.Request) error,
) *Handler {
	return &Handler{
		invoicing:      inv,
		reconciliation: rec,
		scheduler:      sched,
		invoices:       invoices,
		currency:       currency,
		logger:         logger,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		readiness:      readiness,
	}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/billing/runs", h.runBilling)
	mux.HandleFunc("POST /api/v1/contracts/{id}/invoices", h.generateInvoice)
	mux.HandleFunc("GET /api/v1/contracts/{id}/invoices", h.listInvoices)
	mux.HandleFunc("GET /api/v1/invoices/{id}", h.getInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/payments", h.recordPayment)
	mux.HandleFunc("POST /api/v1/invoices/{id}/status:recompute", h.recomputeStatus)
	mux.HandleFunc("DELETE /api/v1/payments/{id}", h.reversePayment)
	mux.HandleFunc("GET /healthz", h.healthz)
}

type runBillingRequest struct {
	// RunDate defaults to today when omitted.
	RunDate string `json:"run_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) runBilling(w http.ResponseWriter, r *http.Request) {
	var req runBillingRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			writeError(r.Context(), w, h.logger, err)
			return
		}
	}

	runDate := time.Now().UTC()
	if req.RunDate != "" {
		runDate, _ = time.Parse(dateLayout, req.RunDate)
	}

	result, err := h.scheduler.RunForDate(r.Context(), runDate)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type generateInvoiceRequest struct {
	PeriodStart string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"required,datetime=2006-01-02"`
	IssueDate   string `json:"issue_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate     string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	var req generateInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	genReq := invoicing.GenerateRequest{ContractID: contractID}
	genReq.PeriodStart, _ = time.Parse(dateLayout, req.PeriodStart)
	genReq.PeriodEnd, _ = time.Parse(dateLayout, req.PeriodEnd)
	if req.IssueDate != "" {
		genReq.IssueDate, _ = time.Parse(dateLayout, req.IssueDate)
	}
	if req.DueDate != "" {
		due, _ := time.Parse(dateLayout, req.DueDate)
		genReq.DueDate = &due
	}

	inv, err := h.invoicing.Generate(r.Context(), genReq)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	inv, err := h.invoices.FindByID(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	contractID, err := pathUUID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	invoices, err := h.invoices.ListByContract(r.Context(), contractID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	if invoices == nil {
		invoices = []*billing.Invoice{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

type recordPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	PaidAt string `json:"paid_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Method string `json:"method" validate:"required,oneof=bank_transfer cash card virtual_account"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	var req recordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	amount, err := values.NewMoneyFromString(req.Amount, h.currency)
	if err != nil {
		writeError(r.Context(), w, h.logger,
			domainerrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, _ = time.Parse(dateLayout, req.PaidAt)
	}

	payment, err := h.reconciliation.RecordPayment(r.Context(), invoiceID, amount,
		paidAt, billing.PaymentMethod(req.Method), req.Note)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathUUID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	if err := h.reconciliation.ReversePayment(r.Context(), paymentID); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recomputeStatus(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	status, err := h.reconciliation.RecomputeStatus(r.Context(), invoiceID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		if err := h.readiness(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode unmarshals and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainerrors.NewValidationError("INVALID_BODY", "malformed request body")
	}

	if err := h.validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field := verrs[0]
			return domainerrors.NewValidationError("INVALID_FIELD",
				fmt.Sprintf("field %q failed validation on %q", field.Field(), field.Tag()))
		}
		return domainerrors.NewValidationError("INVALID_BODY", err.Error())
	}

	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domainerrors.NewValidationError("INVALID_ID",
			fmt.Sprintf("path parameter %q is not a valid UUID", name))
	}
	return id, nil
}
