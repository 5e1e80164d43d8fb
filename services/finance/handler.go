package finance

import (
	"fmt"
	"net/http"
	"strings"

	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r *httpapi.Router, svc *Service) {
	h := &handler{svc: svc}
	r.API.GET("/finance/report", h.report)
	r.API.GET("/finance/export", h.export)
}

func periodOf(c *gin.Context) Period {
	return Period(strings.ToUpper(c.DefaultQuery("period", string(PeriodMonthly))))
}

func (h *handler) report(c *gin.Context) {
	r, err := h.svc.Report(c.Request.Context(), middleware.Actor(c), periodOf(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handler) export(c *gin.Context) {
	period := periodOf(c)
	b, err := h.svc.Export(c.Request.Context(), middleware.Actor(c), period)
	if err != nil {
		_ = c.Error(err)
		return
	}
	name := fmt.Sprintf("relatorio-%s-%s.xlsx", strings.ToLower(string(period)), h.svc.now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, XLSXMimeType, b)
}
