package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/mkonradi/jellywarden/internal/util"
	"github.com/google/uuid"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const watchStatsTTL = 5 * time.Minute

type UserRepository struct {
	Log     *zap.Logger
	DB      *pgxpool.Pool
	DBCache *redis.Client
}

func NewUserRepository(zap *zap.Logger, db *pgxpool.Pool, dbCache *redis.Client) *UserRepository {
	return &UserRepository{
		Log:     zap,
		DB:      db,
		DBCache: dbCache,
	}
}

// Postgresql
func (repository *UserRepository) Create(ctx context.Context, tx pgx.Tx, user model.User) error {
	query := "INSERT INTO users (id, username, email, password, jellyfin_user_id, expires_datetime, disabled, is_admin, invite_code, create_datetime, update_datetime) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)"

	_, err := tx.Exec(ctx, query, user.Id, user.Username, user.Email, user.Password, user.JellyfinUserId, user.ExpiresDatetime, user.Disabled, user.IsAdmin, user.InviteCode, user.CreateDatetime, user.UpdateDatetime)
	if err != nil {
		return err
	}

	return nil
}

func (repository *UserRepository) CheckUsernameUnique(ctx context.Context, username string) (bool, error) {
	query := "SELECT 1 FROM users WHERE username=$1 LIMIT 1"

	var exists int
	err := repository.DB.QueryRow(ctx, query, username).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, err
	}

	return false, nil
}

func (repository *UserRepository) GetUserAuth(ctx context.Context, username string) (uuid.UUID, string, bool, error) {
	query := "SELECT id,password,is_admin FROM users WHERE username=$1 AND disabled=false LIMIT 1"

	var id uuid.UUID
	var passwordHash string
	var isAdmin bool

	err := repository.DB.QueryRow(ctx, query, username).Scan(&id, &passwordHash, &isAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return id, passwordHash, isAdmin, &model.ValidationError{
				Code:    constant.ERR_VALIDATION_CODE,
				Message: "Username is not found",
				Param:   "username",
			}
		}
		return id, passwordHash, isAdmin, err
	}

	return id, passwordHash, isAdmin, nil
}

func (repository *UserRepository) FindById(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := "SELECT id, username, email, password, jellyfin_user_id, expires_datetime, disabled, is_admin, invite_code, create_datetime, update_datetime FROM users WHERE id=$1 LIMIT 1"

	user := model.User{}
	err := repository.DB.QueryRow(ctx, query, id).Scan(&user.Id, &user.Username, &user.Email, &user.Password, &user.JellyfinUserId, &user.ExpiresDatetime, &user.Disabled, &user.IsAdmin, &user.InviteCode, &user.CreateDatetime, &user.UpdateDatetime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, &model.ValidationError{
				Code:    constant.ERR_NOT_FOUND_ERROR,
				Message: "User not found",
				Param:   "userId",
			}
		}
		return user, err
	}

	return user, nil
}

func (repository *UserRepository) FindAll(ctx context.Context) ([]model.User, error) {
	query := "SELECT id, username, email, password, jellyfin_user_id, expires_datetime, disabled, is_admin, invite_code, create_datetime, update_datetime FROM users ORDER BY create_datetime DESC"

	rows, err := repository.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user := model.User{}
		err := rows.Scan(&user.Id, &user.Username, &user.Email, &user.Password, &user.JellyfinUserId, &user.ExpiresDatetime, &user.Disabled, &user.IsAdmin, &user.InviteCode, &user.CreateDatetime, &user.UpdateDatetime)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// FindExpired returns enabled accounts whose expiry has passed. Used by the
// housekeeping sweep to disable them on the media server.
func (repository *UserRepository) FindExpired(ctx context.Context, now time.Time) ([]model.User, error) {
	query := "SELECT id, username, email, password, jellyfin_user_id, expires_datetime, disabled, is_admin, invite_code, create_datetime, update_datetime FROM users WHERE disabled=false AND expires_datetime IS NOT NULL AND expires_datetime <= $1"

	rows, err := repository.DB.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user := model.User{}
		err := rows.Scan(&user.Id, &user.Username, &user.Email, &user.Password, &user.JellyfinUserId, &user.ExpiresDatetime, &user.Disabled, &user.IsAdmin, &user.InviteCode, &user.CreateDatetime, &user.UpdateDatetime)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (repository *UserRepository) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool, now time.Time) error {
	query := "UPDATE users SET disabled=$2, update_datetime=$3 WHERE id=$1"

	tag, err := repository.DB.Exec(ctx, query, id, disabled, now)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return &model.ValidationError{
			Code:    constant.ERR_NOT_FOUND_ERROR,
			Message: "User not found",
			Param:   "userId",
		}
	}

	return nil
}

func (repository *UserRepository) SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time, now time.Time) error {
	query := "UPDATE users SET expires_datetime=$2, update_datetime=$3 WHERE id=$1"

	tag, err := repository.DB.Exec(ctx, query, id, expiresAt, now)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return &model.ValidationError{
			Code:    constant.ERR_NOT_FOUND_ERROR,
			Message: "User not found",
			Param:   "userId",
		}
	}

	return nil
}

func (repository *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := "DELETE FROM users WHERE id=$1"

	tag, err := repository.DB.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return &model.ValidationError{
			Code:    constant.ERR_NOT_FOUND_ERROR,
			Message: "User not found",
			Param:   "userId",
		}
	}

	return nil
}

// Redis - Cache
func (repository *UserRepository) SetAuthTokenInCache(ctx context.Context, accessToken string, refreshToken string, userId uuid.UUID) error {
	accessTokenKey := fmt.Sprintf("auth:accessToken:%s", userId)
	refreshTokenKey := fmt.Sprintf("auth:refreshToken:%s", userId)

	// Hash tokens before storing in Redis for security
	hashedAccessToken := util.HashToken(accessToken)
	hashedRefreshToken := util.HashToken(refreshToken)

	err := repository.DBCache.Set(ctx, accessTokenKey, hashedAccessToken, 15*time.Minute).Err()
	if err != nil {
		return err
	}

	err = repository.DBCache.Set(ctx, refreshTokenKey, hashedRefreshToken, 24*time.Hour).Err()
	if err != nil {
		return err
	}

	return nil
}

func (repository *UserRepository) GetAccessTokenInCache(ctx context.Context, userId uuid.UUID) (string, error) {
	accessTokenKey := fmt.Sprintf("auth:accessToken:%s", userId)
	hashedToken, err := repository.DBCache.Get(ctx, accessTokenKey).Result()
	if err == redis.Nil {
		return hashedToken, &model.ValidationError{
			Code:    constant.ERR_UNAUTHORIZED_ERROR,
			Message: "Authorization token not found or expired",
			Param:   "accessToken",
		}
	} else if err != nil {
		return hashedToken, err
	}

	return hashedToken, nil
}

func (repository *UserRepository) GetRefreshTokenInCache(ctx context.Context, userId uuid.UUID) (string, error) {
	refreshTokenKey := fmt.Sprintf("auth:refreshToken:%s", userId)
	hashedToken, err := repository.DBCache.Get(ctx, refreshTokenKey).Result()
	if err == redis.Nil {
		return hashedToken, &model.ValidationError{
			Code:    constant.ERR_UNAUTHORIZED_ERROR,
			Message: "Refresh token not found or expired",
			Param:   "refreshToken",
		}
	} else if err != nil {
		return hashedToken, err
	}

	return hashedToken, nil
}

func (repository *UserRepository) RemoveAuthToken(ctx context.Context, userId uuid.UUID) error {
	accessTokenKey := fmt.Sprintf("auth:accessToken:%s", userId)
	refreshTokenKey := fmt.Sprintf("auth:refreshToken:%s", userId)

	err := repository.DBCache.Del(ctx, accessTokenKey).Err()
	if err != nil {
		return err
	}

	err = repository.DBCache.Del(ctx, refreshTokenKey).Err()
	if err != nil {
		return err
	}

	return nil
}

func (repository *UserRepository) SetWatchStatsInCache(ctx context.Context, jellyfinUserId string, stats model.UserWatchStats) error {
	key := fmt.Sprintf("watchstats:%s", jellyfinUserId)

	payload, err := sonic.Marshal(stats)
	if err != nil {
		return err
	}

	return repository.DBCache.Set(ctx, key, payload, watchStatsTTL).Err()
}

func (repository *UserRepository) GetWatchStatsInCache(ctx context.Context, jellyfinUserId string) (model.UserWatchStats, bool, error) {
	key := fmt.Sprintf("watchstats:%s", jellyfinUserId)

	stats := model.UserWatchStats{}
	payload, err := repository.DBCache.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return stats, false, nil
	} else if err != nil {
		return stats, false, err
	}

	if err := sonic.Unmarshal(payload, &stats); err != nil {
		return stats, false, err
	}

	return stats, true, nil
}
