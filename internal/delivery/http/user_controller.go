package http

import (
	"errors"

	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/usecase"
	"github.com/mkonradi/jellywarden/internal/util"
	"github.com/google/uuid"

	"github.com/gofiber/fiber/v2"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

type UserController struct {
	UserUsecase *usecase.UserUsecase
	Log         *zap.Logger
	Config      *koanf.Koanf
}

func NewUserController(userUsecase *usecase.UserUsecase, zap *zap.Logger, koanf *koanf.Koanf) *UserController {
	return &UserController{
		UserUsecase: userUsecase,
		Log:         zap,
		Config:      koanf,
	}
}

func (controller UserController) Login(ctx *fiber.Ctx) error {
	var payload model.UserLoginRequest
	err := util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	var validationErr *model.ValidationError

	response, err := controller.UserUsecase.Login(ctx, payload)
	if err != nil {
		if errors.As(err, &validationErr) {
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller UserController) Refresh(ctx *fiber.Ctx) error {
	var payload model.TokenRefreshRequest
	err := util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	var validationErr *model.ValidationError

	response, err := controller.UserUsecase.Refresh(ctx, ctx.Get(fiber.HeaderAuthorization), payload)
	if err != nil {
		if errors.As(err, &validationErr) {
			if validationErr.Code == constant.ERR_UNAUTHORIZED_ERROR {
				return util.SendErrorResponseUnauthorized(ctx, err)
			}
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller UserController) Logout(ctx *fiber.Ctx) error {
	userId := ctx.Locals("userId").(uuid.UUID)

	err := controller.UserUsecase.Logout(ctx, userId)
	if err != nil {
		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseNoData(ctx)
}

func (controller UserController) GetUserInfo(ctx *fiber.Ctx) error {
	userId := ctx.Locals("userId").(uuid.UUID)

	var validationErr *model.ValidationError

	response, err := controller.UserUsecase.GetUserInfo(ctx, userId)
	if err != nil {
		if errors.As(err, &validationErr) {
			return util.SendErrorResponseNotFound(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller UserController) GetUsers(ctx *fiber.Ctx) error {
	response, err := controller.UserUsecase.GetUsers(ctx)
	if err != nil {
		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller UserController) parseTargetUserId(ctx *fiber.Ctx) (uuid.UUID, error) {
	targetId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "User id must be a valid uuid",
			Param:   "id",
		}
	}

	return targetId, nil
}

func (controller UserController) Disable(ctx *fiber.Ctx) error {
	return controller.setDisabled(ctx, true)
}

func (controller UserController) Enable(ctx *fiber.Ctx) error {
	return controller.setDisabled(ctx, false)
}

func (controller UserController) setDisabled(ctx *fiber.Ctx, disabled bool) error {
	actorId := ctx.Locals("userId").(uuid.UUID)

	targetId, err := controller.parseTargetUserId(ctx)
	if err != nil {
		return util.SendErrorResponse(ctx, err)
	}

	var validationErr *model.ValidationError

	err = controller.UserUsecase.SetDisabled(ctx, actorId, targetId, disabled)
	if err != nil {
		if errors.As(err, &validationErr) {
			if validationErr.Code == constant.ERR_NOT_FOUND_ERROR {
				return util.SendErrorResponseNotFound(ctx, err)
			}
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseNoData(ctx)
}

func (controller UserController) UpdateExpiry(ctx *fiber.Ctx) error {
	actorId := ctx.Locals("userId").(uuid.UUID)

	targetId, err := controller.parseTargetUserId(ctx)
	if err != nil {
		return util.SendErrorResponse(ctx, err)
	}

	var payload model.UserExpiryUpdateRequest
	err = util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	var validationErr *model.ValidationError

	response, err := controller.UserUsecase.UpdateExpiry(ctx, actorId, targetId, payload)
	if err != nil {
		if errors.As(err, &validationErr) {
			if validationErr.Code == constant.ERR_NOT_FOUND_ERROR {
				return util.SendErrorResponseNotFound(ctx, err)
			}
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller UserController) Delete(ctx *fiber.Ctx) error {
	actorId := ctx.Locals("userId").(uuid.UUID)

	targetId, err := controller.parseTargetUserId(ctx)
	if err != nil {
		return util.SendErrorResponse(ctx, err)
	}

	var validationErr *model.ValidationError

	err = controller.UserUsecase.Delete(ctx, actorId, targetId)
	if err != nil {
		if errors.As(err, &validationErr) {
			if validationErr.Code == constant.ERR_NOT_FOUND_ERROR {
				return util.SendErrorResponseNotFound(ctx, err)
			}
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseNoData(ctx)
}

func (controller UserController) GetWatchStats(ctx *fiber.Ctx) error {
	targetId, err := controller.parseTargetUserId(ctx)
	if err != nil {
		return util.SendErrorResponse(ctx, err)
	}

	var validationErr *model.ValidationError

	response, err := controller.UserUsecase.GetWatchStats(ctx, targetId)
	if err != nil {
		if errors.As(err, &validationErr) {
			return util.SendErrorResponseNotFound(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}
