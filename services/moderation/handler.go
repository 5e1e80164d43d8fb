package moderation

import (
	"net/http"

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
	r.API.GET("/reports", h.listPending)
	r.API.POST("/reports/dismiss", h.dismiss)
	r.API.POST("/reports/punish", h.punish)
}

func (h *handler) listPending(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	reports, err := h.svc.ListPending(c.Request.Context(), middleware.Actor(c), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}

type dismissRequest struct {
	ReportIDs []string `json:"report_ids" binding:"required"`
}

func (h *handler) dismiss(c *gin.Context) {
	var req dismissRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := h.svc.Dismiss(c.Request.Context(), middleware.Actor(c), req.ReportIDs); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) punish(c *gin.Context) {
	var req PunishParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := h.svc.Punish(c.Request.Context(), middleware.Actor(c), req); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
