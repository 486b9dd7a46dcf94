package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/invite"
	"github.com/mkonradi/jellywarden/internal/jellyfin"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/repository"
	"github.com/mkonradi/jellywarden/internal/util"
	"github.com/google/uuid"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserUsecase struct {
	UserRepository     *repository.UserRepository
	ActivityRepository *repository.ActivityRepository
	Jellyfin           *jellyfin.Client
	DB                 *pgxpool.Pool
	Log                *zap.Logger
	Config             *koanf.Koanf
}

func NewUserUsecase(userRepository *repository.UserRepository, activityRepository *repository.ActivityRepository, jellyfinClient *jellyfin.Client, db *pgxpool.Pool, zap *zap.Logger, koanf *koanf.Koanf) *UserUsecase {
	return &UserUsecase{
		UserRepository:     userRepository,
		ActivityRepository: activityRepository,
		Jellyfin:           jellyfinClient,
		DB:                 db,
		Log:                zap,
		Config:             koanf,
	}
}

func (usecase *UserUsecase) Login(ctx *fiber.Ctx, payload model.UserLoginRequest) (model.TokenResponse, error) {
	ctxContext := ctx.Context()
	token := model.TokenResponse{}

	if payload.Username == "" {
		return token, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Username is required to not be empty",
			Param:   "username",
		}
	} else if len(payload.Username) > constant.MAX_USERNAME_LENGTH {
		return token, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: fmt.Sprintf("Username must be at most %d characters", constant.MAX_USERNAME_LENGTH),
			Param:   "username",
		}
	}

	if payload.Password == "" {
		return token, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Password is required to not be empty",
			Param:   "password",
		}
	} else if len(payload.Password) > constant.MAX_PASSWORD_LENGTH {
		return token, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: fmt.Sprintf("Password must be at most %d characters", constant.MAX_PASSWORD_LENGTH),
			Param:   "password",
		}
	}

	payload.Username = strings.ToLower(payload.Username)

	userId, password, isAdmin, err := usecase.UserRepository.GetUserAuth(ctxContext, payload.Username)
	if err != nil {
		return token, err
	}

	if !isAdmin {
		return token, &model.ValidationError{
			Code:    constant.ERR_UNAUTHORIZED_ERROR,
			Message: "Only administrators can sign in to the manager",
			Param:   "username",
		}
	}

	err = bcrypt.CompareHashAndPassword([]byte(password), []byte(payload.Password))
	if err != nil {
		return token, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Password is incorrect",
			Param:   "password",
		}
	}

	token, err = util.GenerateTokenPair(userId, usecase.Config.String("JWT_SECRET_KEY"))
	if err != nil {
		return token, err
	}

	err = usecase.UserRepository.SetAuthTokenInCache(ctxContext, token.AccessToken, token.RefreshToken, userId)
	if err != nil {
		return token, err
	}

	return token, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The stale
// access token identifies the user; its signature is checked but its expiry
// is not.
func (usecase *UserUsecase) Refresh(ctx *fiber.Ctx, authHeader string, payload model.TokenRefreshRequest) (model.TokenResponse, error) {
	ctxContext := ctx.Context()
	token := model.TokenResponse{}

	if payload.RefreshToken == "" {
		return token, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Refresh token is required to not be empty",
			Param:   "refreshToken",
		}
	}

	jwtSecretKey := usecase.Config.String("JWT_SECRET_KEY")

	userId, err := util.ExtractUserIdAllowExpired(authHeader, jwtSecretKey)
	if err != nil {
		return token, err
	}

	hashedTokenFromCache, err := usecase.UserRepository.GetRefreshTokenInCache(ctxContext, userId)
	if err != nil {
		return token, err
	}

	if hashedTokenFromCache != util.HashToken(payload.RefreshToken) {
		return token, &model.ValidationError{
			Code:    constant.ERR_UNAUTHORIZED_ERROR,
			Message: "Refresh token does not match",
			Param:   "refreshToken",
		}
	}

	token, err = util.GenerateTokenPair(userId, jwtSecretKey)
	if err != nil {
		return token, err
	}

	err = usecase.UserRepository.SetAuthTokenInCache(ctxContext, token.AccessToken, token.RefreshToken, userId)
	if err != nil {
		return token, err
	}

	return token, nil
}

func (usecase *UserUsecase) GetAccessToken(ctx *fiber.Ctx, userId uuid.UUID, accessToken string) error {
	hashedTokenFromCache, err := usecase.UserRepository.GetAccessTokenInCache(ctx.Context(), userId)
	if err != nil {
		return err
	}

	// Hash the token from client before comparing with cached hash
	hashedTokenFromClient := util.HashToken(accessToken)

	if hashedTokenFromClient != hashedTokenFromCache {
		return &model.ValidationError{
			Code:    constant.ERR_UNAUTHORIZED_ERROR,
			Message: "Authorization token is expired",
			Param:   "accessToken",
		}
	}

	return nil
}

func (usecase *UserUsecase) Logout(ctx *fiber.Ctx, userId uuid.UUID) error {
	err := usecase.UserRepository.RemoveAuthToken(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return nil
}

func (usecase *UserUsecase) GetUserInfo(ctx *fiber.Ctx, userId uuid.UUID) (model.UserResponse, error) {
	user, err := usecase.UserRepository.FindById(ctx.Context(), userId)
	if err != nil {
		return model.UserResponse{}, err
	}

	return toUserResponse(user), nil
}

func (usecase *UserUsecase) GetUsers(ctx *fiber.Ctx) ([]model.UserResponse, error) {
	users, err := usecase.UserRepository.FindAll(ctx.Context())
	if err != nil {
		return nil, err
	}

	response := []model.UserResponse{}
	for _, user := range users {
		response = append(response, toUserResponse(user))
	}

	return response, nil
}

// SetDisabled flips the local flag and mirrors it to the media server. The
// Jellyfin call goes first: if the media server refuses, the local state
// stays untouched.
func (usecase *UserUsecase) SetDisabled(ctx *fiber.Ctx, actorId uuid.UUID, userId uuid.UUID, disabled bool) error {
	ctxContext := ctx.Context()

	user, err := usecase.UserRepository.FindById(ctxContext, userId)
	if err != nil {
		return err
	}

	if user.Disabled == disabled {
		return nil
	}

	err = usecase.Jellyfin.SetUserDisabled(ctxContext, user.JellyfinUserId, disabled)
	if err != nil {
		return err
	}

	now := usecase.now()
	err = usecase.UserRepository.SetDisabled(ctxContext, userId, disabled, now)
	if err != nil {
		return err
	}

	kind := model.ActivityUserEnabled
	if disabled {
		kind = model.ActivityUserDisabled
	}

	activity := model.Activity{
		Id:             uuid.New(),
		Kind:           kind,
		Subject:        userId.String(),
		ActorId:        &actorId,
		Detail:         &user.Username,
		CreateDatetime: now,
	}

	return usecase.ActivityRepository.Record(ctxContext, activity)
}

// UpdateExpiry extends (or clears, with an all-zero duration) the account
// expiry, measured from the current expiry when one exists and is still in
// the future, otherwise from now.
func (usecase *UserUsecase) UpdateExpiry(ctx *fiber.Ctx, actorId uuid.UUID, userId uuid.UUID, payload model.UserExpiryUpdateRequest) (model.UserResponse, error) {
	ctxContext := ctx.Context()
	response := model.UserResponse{}

	if payload.Months < 0 || payload.Days < 0 || payload.Hours < 0 || payload.Minutes < 0 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Expiry duration components must not be negative",
			Param:   "months",
		}
	}

	user, err := usecase.UserRepository.FindById(ctxContext, userId)
	if err != nil {
		return response, err
	}

	now := usecase.now()

	base := now
	if user.ExpiresDatetime != nil && user.ExpiresDatetime.After(now) {
		base = *user.ExpiresDatetime
	}

	synthetic := model.Invite{
		UserExpiryEnabled: true,
		UserExpiryMonths:  payload.Months,
		UserExpiryDays:    payload.Days,
		UserExpiryHours:   payload.Hours,
		UserExpiryMinutes: payload.Minutes,
	}

	newExpiry, err := invite.AccountExpiry(synthetic, base)
	if err != nil {
		return response, err
	}

	err = usecase.UserRepository.SetExpiry(ctxContext, userId, newExpiry, now)
	if err != nil {
		return response, err
	}

	activity := model.Activity{
		Id:             uuid.New(),
		Kind:           model.ActivityUserExpiryExtended,
		Subject:        userId.String(),
		ActorId:        &actorId,
		Detail:         &user.Username,
		CreateDatetime: now,
	}
	err = usecase.ActivityRepository.Record(ctxContext, activity)
	if err != nil {
		return response, err
	}

	user.ExpiresDatetime = newExpiry
	user.UpdateDatetime = now

	return toUserResponse(user), nil
}

func (usecase *UserUsecase) Delete(ctx *fiber.Ctx, actorId uuid.UUID, userId uuid.UUID) error {
	ctxContext := ctx.Context()

	user, err := usecase.UserRepository.FindById(ctxContext, userId)
	if err != nil {
		return err
	}

	if user.IsAdmin {
		return &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Administrator accounts cannot be deleted through the manager",
			Param:   "userId",
		}
	}

	err = usecase.Jellyfin.DeleteUser(ctxContext, user.JellyfinUserId)
	if err != nil {
		// A user already gone on the media server should not block local
		// cleanup.
		var apiErr *jellyfin.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != fiber.StatusNotFound {
			return err
		}
	}

	err = usecase.UserRepository.Delete(ctxContext, userId)
	if err != nil {
		return err
	}

	activity := model.Activity{
		Id:             uuid.New(),
		Kind:           model.ActivityUserDeleted,
		Subject:        userId.String(),
		ActorId:        &actorId,
		Detail:         &user.Username,
		CreateDatetime: usecase.now(),
	}

	return usecase.ActivityRepository.Record(ctxContext, activity)
}

// GetWatchStats serves from the redis cache when fresh, otherwise asks the
// media server and re-primes the cache.
func (usecase *UserUsecase) GetWatchStats(ctx *fiber.Ctx, userId uuid.UUID) (model.UserWatchStats, error) {
	ctxContext := ctx.Context()

	user, err := usecase.UserRepository.FindById(ctxContext, userId)
	if err != nil {
		return model.UserWatchStats{}, err
	}

	cached, hit, err := usecase.UserRepository.GetWatchStatsInCache(ctxContext, user.JellyfinUserId)
	if err != nil {
		return model.UserWatchStats{}, err
	}
	if hit {
		return cached, nil
	}

	playStats, err := usecase.Jellyfin.UserPlayStats(ctxContext, user.JellyfinUserId)
	if err != nil {
		return model.UserWatchStats{}, err
	}

	jfUser, err := usecase.Jellyfin.GetUser(ctxContext, user.JellyfinUserId)
	if err != nil {
		return model.UserWatchStats{}, err
	}

	stats := model.UserWatchStats{
		UserId:       user.Id.String(),
		PlayCount:    playStats.TotalPlayCount,
		LastActivity: jfUser.LastActivityDate,
	}

	err = usecase.UserRepository.SetWatchStatsInCache(ctxContext, user.JellyfinUserId, stats)
	if err != nil {
		return stats, err
	}

	return stats, nil
}

func (usecase *UserUsecase) now() time.Time {
	return time.Now().UTC()
}

func toUserResponse(user model.User) model.UserResponse {
	return model.UserResponse{
		Id:             user.Id.String(),
		Username:       user.Username,
		Email:          user.Email,
		JellyfinUserId: user.JellyfinUserId,
		ExpiresAt:      user.ExpiresDatetime,
		Disabled:       user.Disabled,
		CreateDatetime: user.CreateDatetime,
	}
}
