package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/logger"
	"github.com/farmerp/backend/internal/interfaces/http/dto"
	"github.com/farmerp/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides the response helpers shared by all handlers
type BaseHandler struct{}

// getRequestID returns the id assigned by the request id middleware,
// falling back to the raw header
func getRequestID(c *gin.Context) string {
	if id := middleware.GetRequestID(c); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithData sends an error response that also carries partial results
func (h *BaseHandler) ErrorWithData(c *gin.Context, code, message string, data any) {
	resp := dto.NewErrorResponseWithRequestID(code, message, getRequestID(c))
	resp.Data = data
	c.JSON(dto.GetHTTPStatus(code), resp)
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts an error into a response. Integrity errors keep their
// operator-facing message; unknown errors are logged and hidden.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := errorCode(err)
	if code == dto.ErrCodeInternal {
		logger.WithLogger(c.Request.Context(), logger.GetGinLogger(c)).Error("request failed", zap.Error(err))
		message = "An unexpected error occurred"
	}
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

func errorCode(err error) (string, string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return dto.NormalizeErrorCode(domainErr.Code), domainErr.Message
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dto.ErrCodeTimeout, "The request was cancelled before it completed"
	}
	var ie *integrity.Error
	if errors.As(err, &ie) {
		return dto.ErrorCodeForKind(ie.Kind), ie.Message
	}
	kind := integrity.KindOf(err)
	return dto.ErrorCodeForKind(kind), integrity.MessageOf(err)
}

// Outcome sends the result of a single fix, restore or rollback. A failed
// outcome is an error response whose status follows its error kind; the
// outcome itself is returned as data either way.
func (h *BaseHandler) Outcome(c *gin.Context, o integrity.Outcome) {
	if o.Status == integrity.OutcomeFailed {
		h.ErrorWithData(c, dto.ErrorCodeForKind(o.ErrorKind), o.Message, o)
		return
	}
	h.Success(c, o)
}

// tagScope records the scope on the request context so later log lines
// carry it
func tagScope(c *gin.Context, scope integrity.Scope) {
	ctx := c.Request.Context()
	ctx, _ = logger.WithScope(ctx, logger.FromContext(ctx), scope.Key())
	c.Request = c.Request.WithContext(ctx)
}

// bindError writes the response for a request that failed to bind
func (h *BaseHandler) bindError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}
