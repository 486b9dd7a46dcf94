package usecase

import (
	"context"
	"time"

	"github.com/mkonradi/jellywarden/internal/jellyfin"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/repository"
	"github.com/google/uuid"

	"go.uber.org/zap"
)

// HousekeepingUsecase runs the periodic sweep: expired invites are removed
// and accounts past their expiry are disabled here and on the media server.
type HousekeepingUsecase struct {
	InviteRepository   *repository.InviteRepository
	UserRepository     *repository.UserRepository
	ActivityRepository *repository.ActivityRepository
	Jellyfin           *jellyfin.Client
	Log                *zap.Logger
	Interval           time.Duration

	Clock func() time.Time
}

func NewHousekeepingUsecase(inviteRepository *repository.InviteRepository, userRepository *repository.UserRepository, activityRepository *repository.ActivityRepository, jellyfinClient *jellyfin.Client, zap *zap.Logger, interval time.Duration) *HousekeepingUsecase {
	return &HousekeepingUsecase{
		InviteRepository:   inviteRepository,
		UserRepository:     userRepository,
		ActivityRepository: activityRepository,
		Jellyfin:           jellyfinClient,
		Log:                zap,
		Interval:           interval,
		Clock:              func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. Intended to be started as a goroutine
// from the app wiring.
func (usecase *HousekeepingUsecase) Run(ctx context.Context) {
	ticker := time.NewTicker(usecase.Interval)
	defer ticker.Stop()

	usecase.Log.Info("housekeeping sweep started", zap.Duration("interval", usecase.Interval))

	for {
		select {
		case <-ctx.Done():
			usecase.Log.Info("housekeeping sweep stopped")
			return
		case <-ticker.C:
			usecase.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Errors are logged and the pass continues: a
// failing media server must not stop expired invites from being removed.
func (usecase *HousekeepingUsecase) Sweep(ctx context.Context) {
	now := usecase.Clock()

	codes, err := usecase.InviteRepository.DeleteExpired(ctx, now)
	if err != nil {
		usecase.Log.Error("failed to delete expired invites", zap.Error(err))
	} else if len(codes) > 0 {
		usecase.Log.Info("removed expired invites", zap.Strings("codes", codes))
	}

	expired, err := usecase.UserRepository.FindExpired(ctx, now)
	if err != nil {
		usecase.Log.Error("failed to list expired users", zap.Error(err))
		return
	}

	for _, user := range expired {
		err = usecase.Jellyfin.SetUserDisabled(ctx, user.JellyfinUserId, true)
		if err != nil {
			usecase.Log.Error("failed to disable expired user on media server", zap.String("userId", user.Id.String()), zap.Error(err))
			continue
		}

		err = usecase.UserRepository.SetDisabled(ctx, user.Id, true, now)
		if err != nil {
			usecase.Log.Error("failed to disable expired user", zap.String("userId", user.Id.String()), zap.Error(err))
			continue
		}

		activity := model.Activity{
			Id:             uuid.New(),
			Kind:           model.ActivityUserDisabled,
			Subject:        user.Id.String(),
			Detail:         &user.Username,
			CreateDatetime: now,
		}
		err = usecase.ActivityRepository.Record(ctx, activity)
		if err != nil {
			usecase.Log.Error("failed to record disable activity", zap.String("userId", user.Id.String()), zap.Error(err))
		}

		usecase.Log.Info("disabled expired account", zap.String("userId", user.Id.String()), zap.String("username", user.Username))
	}
}
