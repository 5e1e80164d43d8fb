package user

import (
	"net/http"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r *httpapi.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.GET("/users/:id", h.get)
	r.API.PUT("/users/:id/role", h.updateRole)
	r.API.PUT("/users/:id/subscription", h.setSubscription)
}

func (h *handler) get(c *gin.Context) {
	if err := h.svc.access.RequireSelfOr(middleware.Actor(c), c.Param("id"), access.UserManage); err != nil {
		_ = c.Error(err)
		return
	}

	u, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type updateRoleRequest struct {
	Role identity.Role `json:"role" binding:"required"`
}

func (h *handler) updateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	u, err := h.svc.UpdateRole(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type setSubscriptionRequest struct {
	Tier SubscriptionTier `json:"tier" binding:"required"`
	Days int              `json:"days"`
}

func (h *handler) setSubscription(c *gin.Context) {
	var req setSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	u, err := h.svc.SetSubscription(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Tier, req.Days)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}
