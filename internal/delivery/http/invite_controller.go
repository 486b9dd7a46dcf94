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

type InviteController struct {
	InviteUsecase *usecase.InviteUsecase
	Log           *zap.Logger
	Config        *koanf.Koanf
}

func NewInviteController(inviteUsecase *usecase.InviteUsecase, zap *zap.Logger, koanf *koanf.Koanf) *InviteController {
	return &InviteController{
		InviteUsecase: inviteUsecase,
		Log:           zap,
		Config:        koanf,
	}
}

// sendInviteError picks the status from the error kind so the signup form
// can distinguish a dead link from a race from bad input.
func (controller InviteController) sendInviteError(ctx *fiber.Ctx, err error) error {
	var validationErr *model.ValidationError
	if !errors.As(err, &validationErr) {
		return util.SendErrorResponseInternalServer(ctx, controller.Log, err)
	}

	switch validationErr.Code {
	case constant.ERR_INVITE_NOT_FOUND_CODE, constant.ERR_NOT_FOUND_ERROR:
		return util.SendErrorResponseNotFound(ctx, err)
	case constant.ERR_INVITE_EXPIRED_CODE, constant.ERR_INVITE_EXHAUSTED_CODE:
		return util.SendErrorResponseGone(ctx, err)
	case constant.ERR_CONCURRENCY_CONFLICT_CODE:
		return util.SendErrorResponseConflict(ctx, err)
	default:
		return util.SendErrorResponse(ctx, err)
	}
}

func (controller InviteController) Create(ctx *fiber.Ctx) error {
	actorId := ctx.Locals("userId").(uuid.UUID)

	var payload model.InviteCreateRequest
	err := util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	response, err := controller.InviteUsecase.Create(ctx, actorId, payload)
	if err != nil {
		return controller.sendInviteError(ctx, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller InviteController) GetInviteInfo(ctx *fiber.Ctx) error {
	code := ctx.Params("code")

	response, err := controller.InviteUsecase.GetInviteInfo(ctx, code)
	if err != nil {
		return controller.sendInviteError(ctx, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller InviteController) GetInvites(ctx *fiber.Ctx) error {
	response, err := controller.InviteUsecase.GetInvites(ctx)
	if err != nil {
		return controller.sendInviteError(ctx, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}

func (controller InviteController) Delete(ctx *fiber.Ctx) error {
	actorId := ctx.Locals("userId").(uuid.UUID)
	code := ctx.Params("code")

	err := controller.InviteUsecase.Delete(ctx, actorId, code)
	if err != nil {
		return controller.sendInviteError(ctx, err)
	}

	return util.SendSuccessResponseNoData(ctx)
}

func (controller InviteController) Redeem(ctx *fiber.Ctx) error {
	code := ctx.Params("code")

	var payload model.InviteRedeemRequest
	err := util.ReadRequestBody(ctx, &payload)
	if err != nil {
		return util.SendErrorResponse(ctx, &model.ValidationError{
			Code:    constant.ERR_INVALID_REQUEST_BODY_ERROR_CODE,
			Message: constant.ERR_INVALID_REQUEST_BODY_MESSAGE,
		})
	}

	response, err := controller.InviteUsecase.Redeem(ctx, code, payload)
	if err != nil {
		return controller.sendInviteError(ctx, err)
	}

	return util.SendSuccessResponseWithData(ctx, response)
}
