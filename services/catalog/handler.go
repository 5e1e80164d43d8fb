package catalog

import (
	"errors"
	"net/http"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/middleware"
	"gato-backoffice/pkg/storage"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r *httpapi.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.POST("/works", h.createWork)
	r.API.PUT("/works/:id/hidden", h.setHidden)
	r.API.DELETE("/works/:id", h.deleteWork)
	r.API.GET("/works/:id/staff", h.listStaff)
	r.API.POST("/works/:id/staff", h.addStaff)
	r.API.DELETE("/staff/:id", h.removeStaff)
}

type createWorkForm struct {
	Title       string    `form:"title" binding:"required"`
	Description string    `form:"description"`
	Genres      []string  `form:"genres"`
	AgeRating   AgeRating `form:"age_rating"`
	OwnerID     string    `form:"owner_id"`
}

func (h *handler) createWork(c *gin.Context) {
	var form createWorkForm
	if err := c.ShouldBind(&form); err != nil {
		_ = c.Error(errutil.BadRequest("invalid form", err))
		return
	}

	var cover *storage.Blob
	if fh, err := c.FormFile("cover"); err == nil {
		if cover, err = storage.ReadBlob(fh); err != nil {
			_ = c.Error(errutil.BadRequest("unreadable cover", err))
			return
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		_ = c.Error(errutil.BadRequest("invalid cover upload", err))
		return
	}

	w, err := h.svc.CreateWork(c.Request.Context(), middleware.Actor(c), CreateWorkParams{
		Title:       form.Title,
		Description: form.Description,
		Genres:      form.Genres,
		AgeRating:   form.AgeRating,
		OwnerID:     form.OwnerID,
	}, cover)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type setHiddenRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}

func (h *handler) setHidden(c *gin.Context) {
	var req setHiddenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	w, err := h.svc.SetHidden(c.Request.Context(), middleware.Actor(c), c.Param("id"), *req.Hidden)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *handler) deleteWork(c *gin.Context) {
	if err := h.svc.DeleteWork(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listStaff(c *gin.Context) {
	if err := h.svc.access.Require(middleware.Actor(c), access.WorkStaff); err != nil {
		_ = c.Error(err)
		return
	}

	staff, err := h.svc.ListStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": staff})
}

type addStaffRequest struct {
	UserID string    `json:"user_id" binding:"required_without=Email"`
	Email  string    `json:"email" binding:"omitempty,email"`
	Role   StaffRole `json:"role" binding:"required"`
}

func (h *handler) addStaff(c *gin.Context) {
	var req addStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	var ws *WorkStaff
	var err error
	if req.UserID != "" {
		ws, err = h.svc.AddStaff(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.UserID, req.Role)
	} else {
		ws, err = h.svc.AddStaffByEmail(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Email, req.Role)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (h *handler) removeStaff(c *gin.Context) {
	if err := h.svc.RemoveStaff(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
