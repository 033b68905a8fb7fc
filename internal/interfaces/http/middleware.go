package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Identity headers set by the fronting gateway
const (
	headerUserID    = "X-User-ID"
	headerCompanyID = "X-Company-ID"
	headerUserRole  = "X-User-Role"
)

const actorKey = "actor"

// identityMiddleware reads the caller identity. Browsers cannot set
// headers on websocket upgrades, so allowQuery also accepts the
// user_id, company_id and role query parameters.
func identityMiddleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		lookup := func(header, query string) string {
			if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
				return v
			}
			if allowQuery {
				return strings.TrimSpace(c.Query(query))
			}
			return ""
		}

		userID := lookup(headerUserID, "user_id")
		companyRaw := lookup(headerCompanyID, "company_id")
		if userID == "" || companyRaw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing identity headers",
			})
			return
		}

		companyID, err := strconv.ParseInt(companyRaw, 10, 64)
		if err != nil || companyID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "invalid company id",
			})
			return
		}

		role := strings.ToLower(lookup(headerUserRole, "role"))
		switch role {
		case "":
			role = entity.RoleEmployee
		case entity.RoleEmployee, entity.RoleManager, entity.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "invalid role",
			})
			return
		}

		c.Set(actorKey, entity.Actor{UserID: userID, CompanyID: companyID, Role: role})
		c.Next()
	}
}

// corsMiddleware adds CORS headers for browser clients
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, "+headerUserID+", "+headerCompanyID+", "+headerUserRole)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// actorFrom returns the identity stored by identityMiddleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, approval.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, domainwf.ErrGuardFailed),
		errors.Is(err, approval.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, approval.ErrNoWorkflowConfigured):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the response envelope. Unexpected errors are
// logged and hidden from the caller.
func (h *Handlers) writeError(c *gin.Context, err error, data interface{}) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
		message = "internal server error"
	}

	c.JSON(status, Response{
		Success: false,
		Data:    data,
		Error:   message,
	})
}
