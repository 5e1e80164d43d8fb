package chapter

import (
	"net/http"

	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/middleware"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/ledger"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r *httpapi.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.POST("/works/:id/chapters", h.create)
	r.API.GET("/chapters/:id", h.get)
	r.API.PUT("/chapters/:id/images", h.replaceImages)
	r.API.DELETE("/chapters/:id", h.delete)
	r.API.POST("/chapters/:id/start", h.startTranslation)
	r.API.POST("/chapters/:id/translation", h.submitTranslation)
	r.API.POST("/chapters/:id/edit", h.submitEdit)
	r.API.POST("/chapters/:id/review", h.review)
	r.API.POST("/chapters/:id/reopen", h.reopen)
	r.API.POST("/chapters/:id/publish", h.publish)
	r.API.POST("/chapters/:id/unlock", h.unlock)
	r.API.GET("/users/:id/unlocks", h.listUnlocks)
}

func formBlob(c *gin.Context, field string) (*storage.Blob, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, errutil.ValidationFailed(field+" is required", err,
			errutil.WithDetails(errutil.Detail{Field: field, Message: "required"}))
	}
	b, err := storage.ReadBlob(fh)
	if err != nil {
		return nil, errutil.BadRequest("unreadable upload", err)
	}
	return b, nil
}

type createForm struct {
	Number        *float64   `form:"number" binding:"required"`
	Title         string     `form:"title"`
	PricePremium  *int64     `form:"price_premium"`
	PriceLite     *int64     `form:"price_lite"`
	IsFree        bool       `form:"is_free"`
	InitialStatus WorkStatus `form:"initial_status"`
}

func (h *handler) create(c *gin.Context) {
	var form createForm
	if err := c.ShouldBind(&form); err != nil {
		_ = c.Error(errutil.BadRequest("invalid form", err))
		return
	}
	zip, err := formBlob(c, "file")
	if err != nil {
		_ = c.Error(err)
		return
	}

	ch, err := h.svc.CreateChapter(c.Request.Context(), middleware.Actor(c), CreateParams{
		WorkID:        c.Param("id"),
		Number:        *form.Number,
		Title:         form.Title,
		PricePremium:  form.PricePremium,
		PriceLite:     form.PriceLite,
		IsFree:        form.IsFree,
		InitialStatus: form.InitialStatus,
	}, zip.Data)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *handler) get(c *gin.Context) {
	ch, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) replaceImages(c *gin.Context) {
	zip, err := formBlob(c, "file")
	if err != nil {
		_ = c.Error(err)
		return
	}
	ch, err := h.svc.ReplaceImages(c.Request.Context(), middleware.Actor(c), c.Param("id"), zip.Data)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) delete(c *gin.Context) {
	if err := h.svc.DeleteChapter(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) startTranslation(c *gin.Context) {
	ch, err := h.svc.StartTranslation(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) submitTranslation(c *gin.Context) {
	artifact, err := formBlob(c, "file")
	if err != nil {
		_ = c.Error(err)
		return
	}
	ch, err := h.svc.SubmitTranslation(c.Request.Context(), middleware.Actor(c), c.Param("id"), artifact)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) submitEdit(c *gin.Context) {
	artifact, err := formBlob(c, "file")
	if err != nil {
		_ = c.Error(err)
		return
	}
	ch, err := h.svc.SubmitEdit(c.Request.Context(), middleware.Actor(c), c.Param("id"), artifact)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

type reviewRequest struct {
	Decision Decision `json:"decision" binding:"required"`
}

func (h *handler) review(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	ch, err := h.svc.ReviewQC(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Decision)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) reopen(c *gin.Context) {
	ch, err := h.svc.ReopenEditing(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) publish(c *gin.Context) {
	ch, err := h.svc.Publish(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

type unlockRequest struct {
	Currency ledger.Currency `json:"currency" binding:"required"`
}

func (h *handler) unlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	res, err := h.svc.Unlock(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Currency)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) listUnlocks(c *gin.Context) {
	unlocks, err := h.svc.ListUnlocks(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": unlocks})
}
