package handler

import (
	"context"
	"errors"
	"net/http"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IntegrityHandler exposes detection, fixes, restores and the audit trail
type IntegrityHandler struct {
	BaseHandler
	svc            *appintegrity.IntegrityService
	mutationGuards []gin.HandlerFunc
}

// IntegrityHandlerOption configures an IntegrityHandler
type IntegrityHandlerOption func(*IntegrityHandler)

// WithMutationGuards runs mw before every endpoint that writes, e.g. a rate limit
func WithMutationGuards(mw ...gin.HandlerFunc) IntegrityHandlerOption {
	return func(h *IntegrityHandler) {
		h.mutationGuards = append(h.mutationGuards, mw...)
	}
}

// NewIntegrityHandler creates the handler over svc
func NewIntegrityHandler(svc *appintegrity.IntegrityService, opts ...IntegrityHandlerOption) *IntegrityHandler {
	h := &IntegrityHandler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the endpoints under /integrity
func (h *IntegrityHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/integrity")
	g.GET("/findings", h.ListFindings)
	g.GET("/preview", h.Preview)
	g.GET("/audit-trail", h.ListAuditTrail)

	w := g.Group("", h.mutationGuards...)
	w.POST("/fixes", h.ApplyFix)
	w.POST("/fixes/batch", h.ApplyBatch)
	w.POST("/restore", h.RestoreMissing)
	w.POST("/audit-trail/:id/rollback", h.Rollback)
}

func (h *IntegrityHandler) bindScope(c *gin.Context) (integrity.Scope, bool) {
	var req dto.ScopeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.bindError(c, err)
		return integrity.Scope{}, false
	}
	scope, err := req.ToScope()
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
		return integrity.Scope{}, false
	}
	tagScope(c, scope)
	return scope, true
}

// ListFindings runs detection over the scope in the query. An optional kind
// parameter keeps only findings of that kind.
func (h *IntegrityHandler) ListFindings(c *gin.Context) {
	scope, ok := h.bindScope(c)
	if !ok {
		return
	}
	kind := integrity.Kind(c.Query("kind"))
	if kind != "" && !kind.IsValid() {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "unknown finding kind "+string(kind))
		return
	}

	findings, err := h.svc.Detect(c.Request.Context(), scope)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if kind != "" {
		findings = integrity.FilterByKind(findings, kind)
	}
	h.Success(c, dto.NewFindingsResponse(scope, findings))
}

// Preview returns the correction every finding in scope would make
func (h *IntegrityHandler) Preview(c *gin.Context) {
	scope, ok := h.bindScope(c)
	if !ok {
		return
	}
	groups, err := h.svc.Preview(c.Request.Context(), scope)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if groups == nil {
		groups = []integrity.PreviewGroup{}
	}
	h.Success(c, groups)
}

// ApplyFix applies one finding previously returned by ListFindings
func (h *IntegrityHandler) ApplyFix(c *gin.Context) {
	var req dto.ApplyFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	h.Outcome(c, h.svc.ApplyFix(c.Request.Context(), *req.Finding))
}

// ApplyBatch applies every finding of one kind in scope. A cancelled batch
// reports the outcomes reached so far.
func (h *IntegrityHandler) ApplyBatch(c *gin.Context) {
	var req dto.BatchFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	scope, err := req.ToScope()
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
		return
	}
	tagScope(c, scope)
	kind := integrity.Kind(req.Kind)

	outcomes, err := h.svc.ApplyAllOfKind(c.Request.Context(), kind, scope)
	if err != nil {
		if outcomes != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			resp := dto.NewBatchFixResponse(kind, scope, outcomes)
			resp.Cancelled = true
			h.ErrorWithData(c, dto.ErrCodeTimeout, "batch cancelled; applied fixes are kept", resp)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBatchFixResponse(kind, scope, outcomes))
}

// RestoreMissing recreates the ledger entry of a live source
func (h *IntegrityHandler) RestoreMissing(c *gin.Context) {
	var req dto.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	h.Outcome(c, h.svc.RestoreMissing(c.Request.Context(), inventory.SourceType(req.SourceType), uuid.MustParse(req.SourceID)))
}

// ListAuditTrail returns the audit history of one record, newest first
func (h *IntegrityHandler) ListAuditTrail(c *gin.Context) {
	var q dto.AuditTrailQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}
	entries, err := h.svc.ListAuditTrail(c.Request.Context(), integrity.EntityType(q.ModelType), uuid.MustParse(q.ModelID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewAuditTrailResponse(entries))
}

// Rollback reverses the audit entry named in the path
func (h *IntegrityHandler) Rollback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "audit entry id must be a UUID")
		return
	}
	h.Outcome(c, h.svc.Rollback(c.Request.Context(), id))
}
