package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/wealthdesk/internal/audit/domain"
	importdomain "github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	organizationdomain "github.com/smallbiznis/wealthdesk/internal/organization/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "missing or invalid organization"}

	case errors.Is(err, ErrForbidden),
		errors.Is(err, importdomain.ErrCrossTenantRecord):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}

	case errors.Is(err, ErrNotFound),
		errors.Is(err, importdomain.ErrJobNotFound),
		errors.Is(err, organizationdomain.ErrInvalidOrganization),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "resource not found"}

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, importdomain.ErrInvalidImportType),
		errors.Is(err, importdomain.ErrEmptyBatch),
		errors.Is(err, importdomain.ErrInvalidPageToken),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}

	case errors.Is(err, importdomain.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{Type: "batch_too_large", Message: "batch exceeds the configured row limit"}

	case errors.Is(err, importdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidOrganization):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "missing or invalid organization"}

	case errors.Is(err, importdomain.ErrUndoNotEligible):
		return http.StatusConflict, errorPayload{Type: "undo_not_eligible", Message: "only the latest import for the firm can be undone"}

	case errors.Is(err, importdomain.ErrUndoAlreadyDone):
		return http.StatusConflict, errorPayload{Type: "undo_already_done", Message: "this import has already been undone"}

	case errors.Is(err, importdomain.ErrUndoFailed):
		return http.StatusConflict, errorPayload{Type: "undo_failed", Message: "a previous undo of this import failed"}

	case errors.Is(err, organizationdomain.ErrOrganizationExists):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "an organization with this name already exists"}

	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
