package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type InviteRepository struct {
	Log *zap.Logger
	DB  *pgxpool.Pool
}

func NewInviteRepository(zap *zap.Logger, db *pgxpool.Pool) *InviteRepository {
	return &InviteRepository{
		Log: zap,
		DB:  db,
	}
}

func (repository *InviteRepository) Create(ctx context.Context, invite model.Invite) error {
	query := "INSERT INTO invites (code, label, user_label, created_by, expires_datetime, max_uses, used_count, user_expiry_enabled, user_expiry_months, user_expiry_days, user_expiry_hours, user_expiry_minutes, profile_id, send_to, create_datetime, update_datetime) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)"

	_, err := repository.DB.Exec(ctx, query, invite.Code, invite.Label, invite.UserLabel, invite.CreatedBy, invite.ExpiresDatetime, invite.MaxUses, invite.UsedCount, invite.UserExpiryEnabled, invite.UserExpiryMonths, invite.UserExpiryDays, invite.UserExpiryHours, invite.UserExpiryMinutes, invite.ProfileId, invite.SendTo, invite.CreateDatetime, invite.UpdateDatetime)
	if err != nil {
		return err
	}

	return nil
}

func (repository *InviteRepository) CheckCodeUnique(ctx context.Context, code string) (bool, error) {
	query := "SELECT 1 FROM invites WHERE code=$1 LIMIT 1"

	var exists int
	err := repository.DB.QueryRow(ctx, query, code).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, err
	}

	return false, nil
}

func (repository *InviteRepository) FindByCode(ctx context.Context, code string) (model.Invite, error) {
	query := "SELECT code, label, user_label, created_by, expires_datetime, max_uses, used_count, user_expiry_enabled, user_expiry_months, user_expiry_days, user_expiry_hours, user_expiry_minutes, profile_id, send_to, create_datetime, update_datetime FROM invites WHERE code=$1 LIMIT 1"

	invite := model.Invite{}
	err := repository.DB.QueryRow(ctx, query, code).Scan(&invite.Code, &invite.Label, &invite.UserLabel, &invite.CreatedBy, &invite.ExpiresDatetime, &invite.MaxUses, &invite.UsedCount, &invite.UserExpiryEnabled, &invite.UserExpiryMonths, &invite.UserExpiryDays, &invite.UserExpiryHours, &invite.UserExpiryMinutes, &invite.ProfileId, &invite.SendTo, &invite.CreateDatetime, &invite.UpdateDatetime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invite, &model.ValidationError{
				Code:    constant.ERR_INVITE_NOT_FOUND_CODE,
				Message: "Invite not found",
				Param:   "code",
			}
		}
		return invite, err
	}

	return invite, nil
}

// FindByCodeForUpdate reloads the invite inside the redemption transaction
// with a row lock, so the classification of a failed consume never reads a
// row another transaction is mid-way through changing.
func (repository *InviteRepository) FindByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (model.Invite, error) {
	query := "SELECT code, label, user_label, created_by, expires_datetime, max_uses, used_count, user_expiry_enabled, user_expiry_months, user_expiry_days, user_expiry_hours, user_expiry_minutes, profile_id, send_to, create_datetime, update_datetime FROM invites WHERE code=$1 FOR UPDATE"

	invite := model.Invite{}
	err := tx.QueryRow(ctx, query, code).Scan(&invite.Code, &invite.Label, &invite.UserLabel, &invite.CreatedBy, &invite.ExpiresDatetime, &invite.MaxUses, &invite.UsedCount, &invite.UserExpiryEnabled, &invite.UserExpiryMonths, &invite.UserExpiryDays, &invite.UserExpiryHours, &invite.UserExpiryMinutes, &invite.ProfileId, &invite.SendTo, &invite.CreateDatetime, &invite.UpdateDatetime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invite, &model.ValidationError{
				Code:    constant.ERR_INVITE_NOT_FOUND_CODE,
				Message: "Invite not found",
				Param:   "code",
			}
		}
		return invite, err
	}

	return invite, nil
}

// ConsumeUse increments used_count if and only if the invite is still valid
// at the given instant. The validity predicate lives in the UPDATE itself,
// so two concurrent redeemers of a one-use invite can never both succeed:
// whichever commits second sees used_count already at max_uses and affects
// zero rows.
func (repository *InviteRepository) ConsumeUse(ctx context.Context, tx pgx.Tx, code string, now time.Time) (bool, error) {
	query := `UPDATE invites
			SET used_count = used_count + 1, update_datetime = $2
			WHERE code = $1
			AND (expires_datetime IS NULL OR expires_datetime > $2)
			AND (max_uses IS NULL OR used_count < max_uses)`

	tag, err := tx.Exec(ctx, query, code, now)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (repository *InviteRepository) FindAll(ctx context.Context) ([]model.Invite, error) {
	query := "SELECT code, label, user_label, created_by, expires_datetime, max_uses, used_count, user_expiry_enabled, user_expiry_months, user_expiry_days, user_expiry_hours, user_expiry_minutes, profile_id, send_to, create_datetime, update_datetime FROM invites ORDER BY create_datetime DESC"

	rows, err := repository.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []model.Invite
	for rows.Next() {
		invite := model.Invite{}
		err := rows.Scan(&invite.Code, &invite.Label, &invite.UserLabel, &invite.CreatedBy, &invite.ExpiresDatetime, &invite.MaxUses, &invite.UsedCount, &invite.UserExpiryEnabled, &invite.UserExpiryMonths, &invite.UserExpiryDays, &invite.UserExpiryHours, &invite.UserExpiryMinutes, &invite.ProfileId, &invite.SendTo, &invite.CreateDatetime, &invite.UpdateDatetime)
		if err != nil {
			return nil, err
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return invites, nil
}

func (repository *InviteRepository) Delete(ctx context.Context, code string) error {
	query := "DELETE FROM invites WHERE code=$1"

	tag, err := repository.DB.Exec(ctx, query, code)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return &model.ValidationError{
			Code:    constant.ERR_INVITE_NOT_FOUND_CODE,
			Message: "Invite not found",
			Param:   "code",
		}
	}

	return nil
}

// DeleteExpired is the housekeeping sweep. Returns the codes it removed so
// the sweeper can log them.
func (repository *InviteRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := "DELETE FROM invites WHERE expires_datetime IS NOT NULL AND expires_datetime <= $1 RETURNING code"

	rows, err := repository.DB.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return codes, nil
}
