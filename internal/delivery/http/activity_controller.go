package http

import (
	"errors"

	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/usecase"
	"github.com/mkonradi/jellywarden/internal/util"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ActivityController struct {
	ActivityUsecase *usecase.ActivityUsecase
	Log             *zap.Logger
}

func NewActivityController(activityUsecase *usecase.ActivityUsecase, zap *zap.Logger) *ActivityController {
	return &ActivityController{
		ActivityUsecase: activityUsecase,
		Log:             zap,
	}
}

func (controller ActivityController) GetActivities(ctx *fiber.Ctx) error {
	var validationErr *model.ValidationError

	response, err := controller.ActivityUsecase.GetActivities(ctx)
	if err != nil {
		if errors.As(err, &validationErr) {
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}
