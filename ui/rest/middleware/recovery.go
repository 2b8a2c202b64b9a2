package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/AzielCF/az-wap-sales/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			var res utils.ResponseData
			res.Status = 500
			res.Code = "INTERNAL_SERVER_ERROR"
			res.Message = fmt.Sprintf("%v", rec)

			var generic pkgError.GenericError
			if err, ok := rec.(error); ok && errors.As(err, &generic) {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = err.Error()
			} else {
				logrus.Errorf("Panic recovered in middleware: %v", rec)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
