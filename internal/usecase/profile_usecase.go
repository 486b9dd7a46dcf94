package usecase

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/jellyfin"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/repository"
	"github.com/mkonradi/jellywarden/internal/util"
	"github.com/google/uuid"

	"github.com/gofiber/fiber/v2"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

type ProfileUsecase struct {
	ProfileRepository *repository.ProfileRepository
	Jellyfin          *jellyfin.Client
	Log               *zap.Logger
	Config            *koanf.Koanf
}

func NewProfileUsecase(profileRepository *repository.ProfileRepository, jellyfinClient *jellyfin.Client, zap *zap.Logger, koanf *koanf.Koanf) *ProfileUsecase {
	return &ProfileUsecase{
		ProfileRepository: profileRepository,
		Jellyfin:          jellyfinClient,
		Log:               zap,
		Config:            koanf,
	}
}

func (usecase *ProfileUsecase) Create(ctx *fiber.Ctx, actorId uuid.UUID, payload model.ProfileCreateRequest) (model.ProfileResponse, error) {
	ctxContext := ctx.Context()
	response := model.ProfileResponse{}

	if payload.Name == "" {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Name is required to not be empty",
			Param:   "name",
		}
	} else if len(payload.Name) > 64 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Name must be at most 64 characters",
			Param:   "name",
		}
	}

	if len(payload.Policy) == 0 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Policy is required to not be empty",
			Param:   "policy",
		}
	}

	var policyCheck map[string]any
	if err := sonic.Unmarshal(payload.Policy, &policyCheck); err != nil {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Policy must be a JSON object",
			Param:   "policy",
		}
	}

	unique, err := usecase.ProfileRepository.CheckNameUnique(ctxContext, payload.Name)
	if err != nil {
		return response, err
	}
	if !unique {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Profile name is already exists",
			Param:   "name",
		}
	}

	now := time.Now().UTC()
	profile := model.Profile{
		Id:             uuid.New(),
		Name:           payload.Name,
		Policy:         payload.Policy,
		CreatedBy:      actorId,
		CreateDatetime: now,
		UpdateDatetime: now,
	}

	err = usecase.ProfileRepository.Create(ctxContext, profile)
	if err != nil {
		return response, err
	}

	return toProfileResponse(profile), nil
}

// Capture snapshots the policy of an existing media-server user into a new
// profile, the usual way admins build templates: configure one account by
// hand, then capture it.
func (usecase *ProfileUsecase) Capture(ctx *fiber.Ctx, actorId uuid.UUID, payload model.ProfileCaptureRequest) (model.ProfileResponse, error) {
	ctxContext := ctx.Context()
	response := model.ProfileResponse{}

	if payload.Name == "" {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Name is required to not be empty",
			Param:   "name",
		}
	}

	if payload.JellyfinUserId == "" {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Jellyfin user id is required to not be empty",
			Param:   "jellyfinUserId",
		}
	}

	policy, err := usecase.Jellyfin.GetUserPolicy(ctxContext, payload.JellyfinUserId)
	if err != nil {
		return response, err
	}

	return usecase.Create(ctx, actorId, model.ProfileCreateRequest{
		Name:   payload.Name,
		Policy: policy,
	})
}

func (usecase *ProfileUsecase) GetProfiles(ctx *fiber.Ctx) ([]model.ProfileResponse, error) {
	profiles, err := usecase.ProfileRepository.FindAll(ctx.Context())
	if err != nil {
		return nil, err
	}

	response := []model.ProfileResponse{}
	for _, profile := range profiles {
		response = append(response, toProfileResponse(profile))
	}

	return response, nil
}

func (usecase *ProfileUsecase) UpdateAvatar(ctx *fiber.Ctx, profileId uuid.UUID) error {
	ctxContext := ctx.Context()

	fieldName := "avatar"
	fileHeader, err := ctx.FormFile(fieldName)
	if err != nil {
		return &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Avatar is required to not be empty",
			Param:   fieldName,
		}
	}

	imageFile, imageSize, err := util.ValidateImage(fileHeader, fieldName)
	if err != nil {
		return err
	}

	profile, err := usecase.ProfileRepository.FindById(ctxContext, profileId)
	if err != nil {
		return err
	}

	bucketName := usecase.Config.String("MINIO_BUCKET_NAME")

	if profile.AvatarObjectKey != nil {
		err = usecase.ProfileRepository.DeleteAvatar(ctxContext, bucketName, *profile.AvatarObjectKey)
		if err != nil {
			return err
		}
	}

	objectKey := fmt.Sprintf("profile/avatar/%s.webp", uuid.New())
	err = usecase.ProfileRepository.UploadAvatar(ctxContext, bucketName, objectKey, imageFile, imageSize)
	if err != nil {
		return err
	}

	return usecase.ProfileRepository.SetAvatarObjectKey(ctxContext, profileId, &objectKey)
}

func (usecase *ProfileUsecase) Delete(ctx *fiber.Ctx, profileId uuid.UUID) error {
	ctxContext := ctx.Context()

	profile, err := usecase.ProfileRepository.FindById(ctxContext, profileId)
	if err != nil {
		return err
	}

	if profile.AvatarObjectKey != nil {
		bucketName := usecase.Config.String("MINIO_BUCKET_NAME")
		err = usecase.ProfileRepository.DeleteAvatar(ctxContext, bucketName, *profile.AvatarObjectKey)
		if err != nil {
			return err
		}
	}

	return usecase.ProfileRepository.Delete(ctxContext, profileId)
}

func toProfileResponse(profile model.Profile) model.ProfileResponse {
	return model.ProfileResponse{
		Id:             profile.Id,
		Name:           profile.Name,
		Policy:         profile.Policy,
		HasAvatar:      profile.AvatarObjectKey != nil,
		CreateDatetime: profile.CreateDatetime,
	}
}
