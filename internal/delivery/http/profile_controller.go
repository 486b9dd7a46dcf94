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

type ProfileController struct {
	ProfileUsecase *usecase.ProfileUsecase
	Log            *zap.Logger
	Config         *koanf.Koanf
}

func NewProfileController(profileUsecase *usecase.ProfileUsecase, zap *zap.Logger, koanf *koanf.Koanf) *ProfileController {
	return &ProfileController{
		ProfileUsecase: profileUsecase,
		Log:            zap,
		Config:         koanf,
	}
}

func (controller ProfileController) Create(ctx *fiber.Ctx) error {
	actorId := ctx.Locals("userId").(uuid.UUID)

	var payload model.ProfileCreateRequest
	err := util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	var validationErr *model.ValidationError

	response, err := controller.ProfileUsecase.Create(ctx, actorId, payload)
	if err != nil {
		if errors.As(err, &validationErr) {
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller ProfileController) Capture(ctx *fiber.Ctx) error {
	actorId := ctx.Locals("userId").(uuid.UUID)

	var payload model.ProfileCaptureRequest
	err := util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	var validationErr *model.ValidationError

	response, err := controller.ProfileUsecase.Capture(ctx, actorId, payload)
	if err != nil {
		if errors.As(err, &validationErr) {
			return util.SendErrorResponse(ctx, err)
		}

		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller ProfileController) GetProfiles(ctx *fiber.Ctx) error {
	response, err := controller.ProfileUsecase.GetProfiles(ctx)
	if err != nil {
		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller ProfileController) parseProfileId(ctx *fiber.Ctx) (uuid.UUID, error) {
	profileId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Profile id must be a valid uuid",
			Param:   "id",
		}
	}

	return profileId, nil
}

func (controller ProfileController) UpdateAvatar(ctx *fiber.Ctx) error {
	profileId, err := controller.parseProfileId(ctx)
	if err != nil {
		return util.SendErrorResponse(ctx, err)
	}

	var validationErr *model.ValidationError

	err = controller.ProfileUsecase.UpdateAvatar(ctx, profileId)
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

func (controller ProfileController) Delete(ctx *fiber.Ctx) error {
	profileId, err := controller.parseProfileId(ctx)
	if err != nil {
		return util.SendErrorResponse(ctx, err)
	}

	var validationErr *model.ValidationError

	err = controller.ProfileUsecase.Delete(ctx, profileId)
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
