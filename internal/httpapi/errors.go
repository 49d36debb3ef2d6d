package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
)

type errorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// classify maps a service error to its HTTP status, a stable code and the
// bound that was hit.
func classify(err error) (int, string, map[string]any) {
	var (
		stock    *ledger.InsufficientStockError
		exceeds  *ledger.AmountExceedsDueError
		negative *ledger.NegativeBalanceError
		over     *ledger.OverpaymentError
		missing  *ledger.NotFoundError
	)
	switch {
	case errors.As(err, &stock):
		return http.StatusConflict, "INSUFFICIENT_STOCK", map[string]any{
			"product_id": stock.ProductID,
			"requested":  stock.Requested,
			"available":  stock.Available,
		}
	case errors.As(err, &exceeds):
		return http.StatusConflict, "AMOUNT_EXCEEDS_DUE", map[string]any{
			"sale_id":   exceeds.SaleID,
			"due":       exceeds.Due,
			"requested": exceeds.Requested,
		}
	case errors.As(err, &negative):
		return http.StatusConflict, "NEGATIVE_BALANCE", map[string]any{
			"sale_id":     negative.SaleID,
			"amount_paid": negative.AmountPaid,
			"delta":       negative.Delta,
		}
	case errors.As(err, &over):
		return http.StatusUnprocessableEntity, "OVERPAYMENT", map[string]any{
			"final_amount": over.FinalAmount,
			"amount_paid":  over.AmountPaid,
		}
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS", nil
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, "CONFLICT", nil
	case errors.As(err, &missing):
		return http.StatusNotFound, "NOT_FOUND", map[string]any{
			"entity": missing.Entity,
			"id":     missing.ID,
		}
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", nil
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", nil
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", nil
	}
}

// writeServiceError never exposes the message of an unclassified error.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, details := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.logger.Error("internal error",
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	writeError(w, r, status, code, msg, details)
}

// writeDecodeError answers a body that could not be decoded.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
		return
	}
	writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
