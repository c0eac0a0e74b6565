package controllers

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/quilora/backend-go/internal/errors"
	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

// validate request DTO校验器，跨controller共享
var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONError writes an error body with a detail message.
func (c *BaseController) JSONError(status int, detail string) {
	c.JSON(status, map[string]interface{}{
		"detail": detail,
	})
}

// HandleError maps an application error to an HTTP response.
// Unexpected errors are logged in full and returned as a generic
// message so internals never leak to the caller.
func (c *BaseController) HandleError(err error) {
	if appErr := asAppError(err); appErr != nil {
		if appErr.Type == apperrors.ErrorTypeValidation || appErr.Type == apperrors.ErrorTypeBusiness {
			c.JSONError(appErr.HTTPCode, appErr.Message)
			return
		}
		logger.Error("request failed",
			zap.String("path", c.Ctx.Request.RequestURI),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
		c.JSONError(appErr.HTTPCode, appErr.Message)
		return
	}

	logger.Error("unexpected error",
		zap.String("path", c.Ctx.Request.RequestURI),
		zap.Error(err))
	c.JSONError(http.StatusInternalServerError, "Internal server error")
}

func asAppError(err error) *apperrors.AppError {
	if apperrors.IsAppError(err) {
		return apperrors.GetAppError(err)
	}
	return nil
}
