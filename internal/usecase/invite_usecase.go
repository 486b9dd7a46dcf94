package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
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

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

type InviteUsecase struct {
	InviteRepository   *repository.InviteRepository
	UserRepository     *repository.UserRepository
	ProfileRepository  *repository.ProfileRepository
	ActivityRepository *repository.ActivityRepository
	Jellyfin           *jellyfin.Client
	DB                 *pgxpool.Pool
	Log                *zap.Logger
	Config             *koanf.Koanf

	// Clock supplies "now" for every validity decision so tests can pin it.
	Clock func() time.Time
}

func NewInviteUsecase(inviteRepository *repository.InviteRepository, userRepository *repository.UserRepository, profileRepository *repository.ProfileRepository, activityRepository *repository.ActivityRepository, jellyfinClient *jellyfin.Client, db *pgxpool.Pool, zap *zap.Logger, koanf *koanf.Koanf) *InviteUsecase {
	return &InviteUsecase{
		InviteRepository:   inviteRepository,
		UserRepository:     userRepository,
		ProfileRepository:  profileRepository,
		ActivityRepository: activityRepository,
		Jellyfin:           jellyfinClient,
		DB:                 db,
		Log:                zap,
		Config:             koanf,
		Clock:              func() time.Time { return time.Now().UTC() },
	}
}

func (usecase *InviteUsecase) Create(ctx *fiber.Ctx, actorId uuid.UUID, payload model.InviteCreateRequest) (model.InviteCreateResponse, error) {
	ctxContext := ctx.Context()
	response := model.InviteCreateResponse{}

	if payload.MaxUses != nil {
		if *payload.MaxUses < 1 {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Max uses must be at least 1",
				Param:   "maxUses",
			}
		} else if *payload.MaxUses > constant.MAX_INVITE_USES {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: fmt.Sprintf("Max uses must be at most %d", constant.MAX_INVITE_USES),
				Param:   "maxUses",
			}
		}
	}

	if payload.ExpiresInMinutes != nil && *payload.ExpiresInMinutes < 1 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Expires in minutes must be at least 1",
			Param:   "expiresInMinutes",
		}
	}

	if payload.UserExpiryMonths < 0 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "User expiry months must not be negative",
			Param:   "userExpiryMonths",
		}
	} else if payload.UserExpiryDays < 0 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "User expiry days must not be negative",
			Param:   "userExpiryDays",
		}
	} else if payload.UserExpiryHours < 0 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "User expiry hours must not be negative",
			Param:   "userExpiryHours",
		}
	} else if payload.UserExpiryMinutes < 0 {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "User expiry minutes must not be negative",
			Param:   "userExpiryMinutes",
		}
	}

	if payload.SendTo != nil {
		if !strings.Contains(*payload.SendTo, "@") || len(*payload.SendTo) > 254 {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Send to must be a valid email address",
				Param:   "sendTo",
			}
		}
	}

	if payload.ProfileId != nil {
		_, err := usecase.ProfileRepository.FindById(ctxContext, *payload.ProfileId)
		if err != nil {
			return response, err
		}
	}

	now := usecase.Clock()

	var expiresAt *time.Time
	if payload.ExpiresInMinutes != nil {
		t := now.Add(time.Duration(*payload.ExpiresInMinutes) * time.Minute)
		expiresAt = &t
	}

	code, err := usecase.generateUniqueCode(ctxContext)
	if err != nil {
		return response, err
	}

	newInvite := model.Invite{
		Code:              code,
		Label:             payload.Label,
		UserLabel:         payload.UserLabel,
		CreatedBy:         actorId,
		ExpiresDatetime:   expiresAt,
		MaxUses:           payload.MaxUses,
		UsedCount:         0,
		UserExpiryEnabled: payload.UserExpiryEnabled,
		UserExpiryMonths:  payload.UserExpiryMonths,
		UserExpiryDays:    payload.UserExpiryDays,
		UserExpiryHours:   payload.UserExpiryHours,
		UserExpiryMinutes: payload.UserExpiryMinutes,
		ProfileId:         payload.ProfileId,
		SendTo:            payload.SendTo,
		CreateDatetime:    now,
		UpdateDatetime:    now,
	}

	err = usecase.InviteRepository.Create(ctxContext, newInvite)
	if err != nil {
		return response, err
	}

	activity := model.Activity{
		Id:             uuid.New(),
		Kind:           model.ActivityInviteCreated,
		Subject:        code,
		ActorId:        &actorId,
		Detail:         payload.Label,
		CreateDatetime: now,
	}
	err = usecase.ActivityRepository.Record(ctxContext, activity)
	if err != nil {
		return response, err
	}

	if payload.SendTo != nil {
		// The invite stays valid even if the mail bounces, so a send
		// failure is logged instead of failing the request.
		err = usecase.sendInviteEmail(newInvite)
		if err != nil {
			usecase.Log.Warn("failed to send invite email", zap.String("code", code), zap.Error(err))
		}
	}

	response.Code = code
	response.ExpiresAt = expiresAt

	return response, nil
}

func (usecase *InviteUsecase) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := util.GenerateInviteCode()
		if err != nil {
			return "", err
		}

		unique, err := usecase.InviteRepository.CheckCodeUnique(ctx, code)
		if err != nil {
			return "", err
		}

		if unique {
			return code, nil
		}
	}

	return "", errors.New("failed to generate a unique invite code")
}

func (usecase *InviteUsecase) sendInviteEmail(inv model.Invite) error {
	label := ""
	if inv.Label != nil {
		label = *inv.Label
	}

	expiresAt := "never"
	if inv.ExpiresDatetime != nil {
		expiresAt = inv.ExpiresDatetime.Format("Jan 2, 2006 15:04 MST")
	}

	templateData := model.InviteEmailTemplateData{
		InviteURL: fmt.Sprintf("%s/invite/%s", usecase.Config.String("PUBLIC_URL"), inv.Code),
		Label:     label,
		ExpiresAt: expiresAt,
	}

	tmplParsed, err := template.ParseFS(util.TemplateFS, "template/invite.html")
	if err != nil {
		return err
	}

	var tmpl bytes.Buffer
	err = tmplParsed.Execute(&tmpl, templateData)
	if err != nil {
		return err
	}

	smtpHost := usecase.Config.String("SMTP_HOST")
	smtpPort := usecase.Config.Int("SMTP_PORT")
	senderName := usecase.Config.String("SENDER_NAME")
	senderEmail := usecase.Config.String("SENDER_EMAIL")
	senderPassword := usecase.Config.String("SENDER_PASSWORD")

	subject := "You have been invited to join the media server"
	return util.SendEmail(smtpHost, smtpPort, senderName, senderEmail, senderPassword, *inv.SendTo, subject, tmpl.String())
}

// GetInviteInfo is the public pre-submission view. It runs the same
// evaluator as redemption, so what the signup form displays always matches
// what a subsequent redeem would enforce.
func (usecase *InviteUsecase) GetInviteInfo(ctx *fiber.Ctx, code string) (model.InviteInfoResponse, error) {
	response := model.InviteInfoResponse{}

	inv, err := usecase.InviteRepository.FindByCode(ctx.Context(), code)
	if err != nil {
		return response, err
	}

	eval, err := invite.Evaluate(inv, usecase.Clock())
	if err != nil {
		return response, err
	}

	response = model.InviteInfoResponse{
		Code:              inv.Code,
		Label:             inv.Label,
		UserLabel:         inv.UserLabel,
		ExpiresAt:         inv.ExpiresDatetime,
		UsesRemaining:     eval.UsesRemaining,
		Usable:            eval.Usable,
		Reason:            eval.Reason,
		UserExpiryEnabled: inv.UserExpiryEnabled,
		UserExpiryMonths:  inv.UserExpiryMonths,
		UserExpiryDays:    inv.UserExpiryDays,
		UserExpiryHours:   inv.UserExpiryHours,
		UserExpiryMinutes: inv.UserExpiryMinutes,
	}

	return response, nil
}

func (usecase *InviteUsecase) GetInvites(ctx *fiber.Ctx) ([]model.InviteListItemResponse, error) {
	invites, err := usecase.InviteRepository.FindAll(ctx.Context())
	if err != nil {
		return nil, err
	}

	now := usecase.Clock()
	response := []model.InviteListItemResponse{}
	for _, inv := range invites {
		eval, err := invite.Evaluate(inv, now)
		if err != nil {
			return nil, err
		}

		response = append(response, model.InviteListItemResponse{
			Code:           inv.Code,
			Label:          inv.Label,
			UserLabel:      inv.UserLabel,
			ExpiresAt:      inv.ExpiresDatetime,
			MaxUses:        inv.MaxUses,
			UsedCount:      inv.UsedCount,
			UsesRemaining:  eval.UsesRemaining,
			Usable:         eval.Usable,
			ProfileId:      inv.ProfileId,
			SendTo:         inv.SendTo,
			CreateDatetime: inv.CreateDatetime,
		})
	}

	return response, nil
}

func (usecase *InviteUsecase) Delete(ctx *fiber.Ctx, actorId uuid.UUID, code string) error {
	ctxContext := ctx.Context()

	err := usecase.InviteRepository.Delete(ctxContext, code)
	if err != nil {
		return err
	}

	activity := model.Activity{
		Id:             uuid.New(),
		Kind:           model.ActivityInviteDeleted,
		Subject:        code,
		ActorId:        &actorId,
		CreateDatetime: usecase.Clock(),
	}

	return usecase.ActivityRepository.Record(ctxContext, activity)
}

// Redeem turns a valid invite into a working account: one use consumed, one
// Jellyfin user created, one local user row written, all of it or none of it.
// The use is consumed with a conditional UPDATE whose predicate re-checks
// validity, so two concurrent redeemers of a one-use invite can never both
// succeed regardless of what this process observed beforehand.
func (usecase *InviteUsecase) Redeem(ctx *fiber.Ctx, code string, payload model.InviteRedeemRequest) (model.UserResponse, error) {
	ctxContext := ctx.Context()
	response := model.UserResponse{}

	if payload.Username == "" {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Username is required to not be empty",
			Param:   "username",
		}
	} else if len(payload.Username) < constant.MIN_USERNAME_LENGTH {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: fmt.Sprintf("Username must be at least %d characters", constant.MIN_USERNAME_LENGTH),
			Param:   "username",
		}
	} else if len(payload.Username) > constant.MAX_USERNAME_LENGTH {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: fmt.Sprintf("Username must be at most %d characters", constant.MAX_USERNAME_LENGTH),
			Param:   "username",
		}
	} else if !usernamePattern.MatchString(payload.Username) {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Username may only contain letters, digits, underscore, dot and dash",
			Param:   "username",
		}
	}

	if payload.Password == "" {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Password is required to not be empty",
			Param:   "password",
		}
	} else if len(payload.Password) < constant.MIN_PASSWORD_LENGTH {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: fmt.Sprintf("Password must be at least %d characters", constant.MIN_PASSWORD_LENGTH),
			Param:   "password",
		}
	} else if len(payload.Password) > constant.MAX_PASSWORD_LENGTH {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: fmt.Sprintf("Password must be at most %d characters", constant.MAX_PASSWORD_LENGTH),
			Param:   "password",
		}
	}

	if payload.Email != nil {
		if !strings.Contains(*payload.Email, "@") || len(*payload.Email) > 254 {
			return response, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Email must be a valid email address",
				Param:   "email",
			}
		}
	}

	payload.Username = strings.ToLower(payload.Username)

	unique, err := usecase.UserRepository.CheckUsernameUnique(ctxContext, payload.Username)
	if err != nil {
		return response, err
	}
	if !unique {
		return response, &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Username is already taken",
			Param:   "username",
		}
	}

	// Cheap pre-check so obviously dead invites fail before any work. The
	// transaction below re-checks; this result is advisory only.
	inv, err := usecase.InviteRepository.FindByCode(ctxContext, code)
	if err != nil {
		return response, err
	}

	eval, err := invite.Evaluate(inv, usecase.Clock())
	if err != nil {
		return response, err
	}
	if !eval.Usable {
		return response, usecase.reasonError(eval.Reason)
	}

	response, retry, err := usecase.redeemOnce(ctxContext, code, payload)
	if err != nil && retry {
		usecase.Log.Debug("invite state changed mid-redeem, retrying once", zap.String("code", code))
		response, retry, err = usecase.redeemOnce(ctxContext, code, payload)
		if err != nil && retry {
			return response, &model.ValidationError{
				Code:    constant.ERR_CONCURRENCY_CONFLICT_CODE,
				Message: "Invite state changed while processing, please try again",
				Param:   "code",
			}
		}
	}

	return response, err
}

// redeemOnce is one attempt at the redemption transaction. The bool result
// reports whether a failure is a transient conflict worth one retry.
func (usecase *InviteUsecase) redeemOnce(ctx context.Context, code string, payload model.InviteRedeemRequest) (model.UserResponse, bool, error) {
	response := model.UserResponse{}
	now := usecase.Clock()

	tx, err := usecase.DB.Begin(ctx)
	if err != nil {
		return response, false, err
	}

	defer tx.Rollback(ctx)

	consumed, err := usecase.InviteRepository.ConsumeUse(ctx, tx, code, now)
	if err != nil {
		return response, false, err
	}

	if !consumed {
		// Zero rows affected: either the invite is gone, or its state no
		// longer passes the predicate. Reload under lock and classify.
		inv, err := usecase.InviteRepository.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return response, false, err
		}

		eval, err := invite.Evaluate(inv, now)
		if err != nil {
			return response, false, err
		}

		if !eval.Usable {
			return response, false, usecase.reasonError(eval.Reason)
		}

		// The row evaluates as usable yet the conditional UPDATE missed:
		// a competing transaction changed it under us and rolled back.
		return response, true, errors.New("conditional invite update affected no rows")
	}

	inv, err := usecase.InviteRepository.FindByCodeForUpdate(ctx, tx, code)
	if err != nil {
		return response, false, err
	}

	accountExpiry, err := invite.AccountExpiry(inv, now)
	if err != nil {
		return response, false, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return response, false, err
	}

	// The media-server call happens inside the transaction body so that a
	// rollback always has a matching compensating delete. Creation on
	// Jellyfin is the one side effect SQL cannot undo.
	jfUser, err := usecase.Jellyfin.CreateUser(ctx, payload.Username, payload.Password)
	if err != nil {
		var apiErr *jellyfin.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusBadRequest {
			return response, false, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Username is already taken on the media server",
				Param:   "username",
			}
		}
		return response, false, err
	}

	// Some Jellyfin versions ignore the password sent to /Users/New, so the
	// password is always set with a dedicated call.
	err = usecase.Jellyfin.SetUserPassword(ctx, jfUser.Id, payload.Password)
	if err != nil {
		usecase.compensateJellyfinUser(ctx, jfUser.Id)
		return response, false, err
	}

	if inv.ProfileId != nil {
		err = usecase.applyProfile(ctx, *inv.ProfileId, jfUser.Id)
		if err != nil {
			usecase.compensateJellyfinUser(ctx, jfUser.Id)
			return response, false, err
		}
	}

	userId := uuid.New()
	user := model.User{
		Id:              userId,
		Username:        payload.Username,
		Email:           payload.Email,
		Password:        string(hashedPassword),
		JellyfinUserId:  jfUser.Id,
		ExpiresDatetime: accountExpiry,
		Disabled:        false,
		IsAdmin:         false,
		InviteCode:      &inv.Code,
		CreateDatetime:  now,
		UpdateDatetime:  now,
	}

	err = usecase.UserRepository.Create(ctx, tx, user)
	if err != nil {
		usecase.compensateJellyfinUser(ctx, jfUser.Id)
		return response, false, err
	}

	redeemActivity := model.Activity{
		Id:             uuid.New(),
		Kind:           model.ActivityInviteRedeemed,
		Subject:        inv.Code,
		Detail:         &payload.Username,
		CreateDatetime: now,
	}
	err = usecase.ActivityRepository.RecordTx(ctx, tx, redeemActivity)
	if err != nil {
		usecase.compensateJellyfinUser(ctx, jfUser.Id)
		return response, false, err
	}

	createdActivity := model.Activity{
		Id:             uuid.New(),
		Kind:           model.ActivityUserCreated,
		Subject:        userId.String(),
		Detail:         &payload.Username,
		CreateDatetime: now,
	}
	err = usecase.ActivityRepository.RecordTx(ctx, tx, createdActivity)
	if err != nil {
		usecase.compensateJellyfinUser(ctx, jfUser.Id)
		return response, false, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		usecase.compensateJellyfinUser(ctx, jfUser.Id)
		return response, false, err
	}

	response = model.UserResponse{
		Id:             userId.String(),
		Username:       payload.Username,
		Email:          payload.Email,
		JellyfinUserId: jfUser.Id,
		ExpiresAt:      accountExpiry,
		Disabled:       false,
		CreateDatetime: now,
	}

	return response, false, nil
}

func (usecase *InviteUsecase) applyProfile(ctx context.Context, profileId uuid.UUID, jellyfinUserId string) error {
	profile, err := usecase.ProfileRepository.FindById(ctx, profileId)
	if err != nil {
		return err
	}

	err = usecase.Jellyfin.SetUserPolicy(ctx, jellyfinUserId, []byte(profile.Policy))
	if err != nil {
		return err
	}

	if profile.AvatarObjectKey != nil {
		bucketName := usecase.Config.String("MINIO_BUCKET_NAME")
		avatar, err := usecase.ProfileRepository.GetAvatar(ctx, bucketName, *profile.AvatarObjectKey)
		if err != nil {
			return err
		}
		defer avatar.Close()

		err = usecase.Jellyfin.UploadUserImage(ctx, jellyfinUserId, "image/webp", avatar)
		if err != nil {
			return err
		}
	}

	return nil
}

// compensateJellyfinUser undoes an orphaned media-server account after the
// surrounding transaction fails. Failure here is logged, not returned: the
// caller is already propagating the original error.
func (usecase *InviteUsecase) compensateJellyfinUser(ctx context.Context, jellyfinUserId string) {
	err := usecase.Jellyfin.DeleteUser(ctx, jellyfinUserId)
	if err != nil {
		usecase.Log.Error("failed to delete orphaned media-server user", zap.String("jellyfinUserId", jellyfinUserId), zap.Error(err))
	}
}

func (usecase *InviteUsecase) reasonError(reason string) error {
	switch reason {
	case constant.ERR_INVITE_EXPIRED_CODE:
		return &model.ValidationError{
			Code:    constant.ERR_INVITE_EXPIRED_CODE,
			Message: "Invite has expired",
			Param:   "code",
		}
	case constant.ERR_INVITE_EXHAUSTED_CODE:
		return &model.ValidationError{
			Code:    constant.ERR_INVITE_EXHAUSTED_CODE,
			Message: "Invite has no uses remaining",
			Param:   "code",
		}
	default:
		return &model.ValidationError{
			Code:    constant.ERR_VALIDATION_CODE,
			Message: "Invite is not usable",
			Param:   "code",
		}
	}
}
