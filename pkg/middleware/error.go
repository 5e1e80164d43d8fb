package middleware

import (
	"errors"

	"gato-backoffice/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error as the JSON envelope.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(last.Err, &be) {
			zap.L().Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		} else if be.Code == errutil.StatusInternal {
			zap.L().Error("internal error", zap.String("path", c.FullPath()), zap.Error(be))
		}

		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
