package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/pkg/logger"
)

// errorResponse is the body shape for every non-2xx response (spec §7):
// a machine-readable code plus a human message.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError maps err to the HTTP status/code table in spec §6-§7. An
// error not already an *AppError is treated as Internal and its cause is
// logged but never surfaced to the caller.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal("unexpected error", err)
	}
	if appErr.Code == apperrors.CodeInternal {
		logger.Error("internal error", zap.Error(appErr))
	}
	c.JSON(appErr.Status, errorResponse{Code: appErr.Code, Message: appErr.Message})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, apperrors.Validation(message, nil))
}
