package usecase

import (
	"encoding/base64"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/repository"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ActivityUsecase struct {
	ActivityRepository *repository.ActivityRepository
	Log                *zap.Logger
}

func NewActivityUsecase(activityRepository *repository.ActivityRepository, zap *zap.Logger) *ActivityUsecase {
	return &ActivityUsecase{
		ActivityRepository: activityRepository,
		Log:                zap,
	}
}

func (usecase *ActivityUsecase) GetActivities(ctx *fiber.Ctx) (model.ActivityListResponse, error) {
	response := model.ActivityListResponse{Data: []model.ActivityResponse{}}

	limit := constant.DEFAULT_LIMIT
	if raw := ctx.Query("limit", ""); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Limit must be a positive integer",
				Param:   "limit",
			}
		}
		if parsed > constant.MAX_LIMIT {
			parsed = constant.MAX_LIMIT
		}
		limit = parsed
	}

	var activityCursor model.ActivityCursor
	if cursor := ctx.Query("cursor", ""); cursor != "" {
		b, err := base64.RawURLEncoding.DecodeString(cursor)
		if err != nil {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Cursor is malformed",
				Param:   "cursor",
			}
		}

		err = sonic.Unmarshal(b, &activityCursor)
		if err != nil {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Cursor is malformed",
				Param:   "cursor",
			}
		}
	}

	// Fetch one extra row to learn whether a next page exists.
	activities, err := usecase.ActivityRepository.GetActivities(ctx.Context(), limit+1, &activityCursor)
	if err != nil {
		return response, err
	}

	hasMore := len(activities) > limit
	if hasMore {
		activities = activities[:limit]
	}

	for _, activity := range activities {
		item := model.ActivityResponse{
			Id:             activity.Id,
			Kind:           activity.Kind,
			Subject:        activity.Subject,
			Detail:         activity.Detail,
			CreateDatetime: activity.CreateDatetime,
		}
		if activity.ActorId != nil {
			actor := activity.ActorId.String()
			item.ActorId = &actor
		}
		response.Data = append(response.Data, item)
	}

	if hasMore {
		last := activities[len(activities)-1]
		nextCursor := model.ActivityCursor{
			Id:             last.Id,
			CreateDatetime: last.CreateDatetime,
		}

		b, err := sonic.Marshal(nextCursor)
		if err != nil {
			return response, err
		}

		response.Page.NextCursor = base64.RawURLEncoding.EncodeToString(b)
	}

	return response, nil
}
