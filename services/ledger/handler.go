package ledger

import (
	"net/http"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/pagination"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r *httpapi.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.GET("/users/:id/balance", h.balance)
	r.API.GET("/users/:id/transactions", h.listTransactions)
	r.API.POST("/users/:id/premium", h.adjustPremium)
	r.API.POST("/users/:id/lite", h.grantLite)
	r.API.GET("/users/:id/reconcile", h.reconcile)
}

func (h *handler) balance(c *gin.Context) {
	if err := h.svc.access.RequireSelfOr(middleware.Actor(c), c.Param("id"), access.LedgerAdjust); err != nil {
		_ = c.Error(err)
		return
	}

	b, err := h.svc.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) listTransactions(c *gin.Context) {
	if err := h.svc.access.RequireSelfOr(middleware.Actor(c), c.Param("id"), access.LedgerAdjust); err != nil {
		_ = c.Error(err)
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	txs, err := h.svc.ListTransactions(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txs})
}

type adjustPremiumRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func (h *handler) adjustPremium(c *gin.Context) {
	var req adjustPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	t, err := h.svc.AdjustPremium(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

type grantLiteRequest struct {
	Amount int64 `json:"amount" binding:"required"`
	Days   int   `json:"days" binding:"required"`
}

func (h *handler) grantLite(c *gin.Context) {
	var req grantLiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	res, err := h.svc.GrantLite(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Amount, req.Days)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handler) reconcile(c *gin.Context) {
	if err := h.svc.access.Require(middleware.Actor(c), access.LedgerAdjust); err != nil {
		_ = c.Error(err)
		return
	}

	r, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}
