package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
)

// errorBody is the envelope every non-2xx response carries.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps the error taxonomy onto HTTP statuses: validation 400,
// not found 404, invalid state 422, conflict 409, everything else 500.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	status := domainerrors.GetStatusCode(err)

	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		logger.ErrorContext(ctx, "unhandled error", "error", err)
		appErr = domainerrors.NewInternalError("internal server error")
	}

	if appErr.Type == domainerrors.ErrorTypeInternal {
		logger.ErrorContext(ctx, "internal error", "code", appErr.Code, "error", err)
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Type:    string(appErr.Type),
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}
