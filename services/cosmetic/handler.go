package cosmetic

import (
	"net/http"

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
	r.API.GET("/cosmetics", h.list)
	r.API.POST("/cosmetics", h.create)
	r.API.DELETE("/cosmetics/:id", h.delete)
	r.API.POST("/cosmetics/:id/purchase", h.purchase)
	r.API.POST("/cosmetics/:id/equip", h.equip)
	r.API.GET("/users/:id/cosmetics", h.owned)
}

func (h *handler) list(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *handler) create(c *gin.Context) {
	var req CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	item, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) purchase(c *gin.Context) {
	owned, err := h.svc.Purchase(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, owned)
}

type equipRequest struct {
	Slot Slot `json:"slot" binding:"required"`
}

func (h *handler) equip(c *gin.Context) {
	var req equipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	u, err := h.svc.Equip(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Slot)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) owned(c *gin.Context) {
	items, err := h.svc.Owned(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
