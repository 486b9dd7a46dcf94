package repository

import (
	"bytes"
	"context"
	"errors"

	"github.com/mkonradi/jellywarden/internal/constant"
	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ProfileRepository struct {
	Log      *zap.Logger
	DB       *pgxpool.Pool
	DBObject *minio.Client
}

func NewProfileRepository(zap *zap.Logger, db *pgxpool.Pool, minio *minio.Client) *ProfileRepository {
	return &ProfileRepository{
		Log:      zap,
		DB:       db,
		DBObject: minio,
	}
}

func (repository *ProfileRepository) Create(ctx context.Context, profile model.Profile) error {
	query := "INSERT INTO profiles (id, name, policy, avatar_object_key, created_by, create_datetime, update_datetime) VALUES ($1,$2,$3,$4,$5,$6,$7)"

	_, err := repository.DB.Exec(ctx, query, profile.Id, profile.Name, []byte(profile.Policy), profile.AvatarObjectKey, profile.CreatedBy, profile.CreateDatetime, profile.UpdateDatetime)
	if err != nil {
		return err
	}

	return nil
}

func (repository *ProfileRepository) CheckNameUnique(ctx context.Context, name string) (bool, error) {
	query := "SELECT 1 FROM profiles WHERE name=$1 LIMIT 1"

	var exists int
	err := repository.DB.QueryRow(ctx, query, name).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, err
	}

	return false, nil
}

func (repository *ProfileRepository) FindById(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	query := "SELECT id, name, policy, avatar_object_key, created_by, create_datetime, update_datetime FROM profiles WHERE id=$1 LIMIT 1"

	profile := model.Profile{}
	var policy []byte
	err := repository.DB.QueryRow(ctx, query, id).Scan(&profile.Id, &profile.Name, &policy, &profile.AvatarObjectKey, &profile.CreatedBy, &profile.CreateDatetime, &profile.UpdateDatetime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile, &model.ValidationError{
				Code:    constant.ERR_NOT_FOUND_ERROR,
				Message: "Profile not found",
				Param:   "profileId",
			}
		}
		return profile, err
	}
	profile.Policy = policy

	return profile, nil
}

func (repository *ProfileRepository) FindAll(ctx context.Context) ([]model.Profile, error) {
	query := "SELECT id, name, policy, avatar_object_key, created_by, create_datetime, update_datetime FROM profiles ORDER BY name ASC"

	rows, err := repository.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		profile := model.Profile{}
		var policy []byte
		err := rows.Scan(&profile.Id, &profile.Name, &policy, &profile.AvatarObjectKey, &profile.CreatedBy, &profile.CreateDatetime, &profile.UpdateDatetime)
		if err != nil {
			return nil, err
		}
		profile.Policy = policy
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

func (repository *ProfileRepository) SetAvatarObjectKey(ctx context.Context, id uuid.UUID, objectKey *string) error {
	query := "UPDATE profiles SET avatar_object_key=$2 WHERE id=$1"

	tag, err := repository.DB.Exec(ctx, query, id, objectKey)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return &model.ValidationError{
			Code:    constant.ERR_NOT_FOUND_ERROR,
			Message: "Profile not found",
			Param:   "profileId",
		}
	}

	return nil
}

func (repository *ProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := "DELETE FROM profiles WHERE id=$1"

	tag, err := repository.DB.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return &model.ValidationError{
			Code:    constant.ERR_NOT_FOUND_ERROR,
			Message: "Profile not found",
			Param:   "profileId",
		}
	}

	return nil
}

// Minio - Object storage
func (repository *ProfileRepository) UploadAvatar(ctx context.Context, bucketName string, objectKey string, imageFile *bytes.Reader, imageSize int64) error {
	_, err := repository.DBObject.PutObject(ctx, bucketName, objectKey, imageFile, imageSize,
		minio.PutObjectOptions{
			ContentType:  "image/webp",
			CacheControl: "public, max-age=31536000, immutable",
		})
	if err != nil {
		return err
	}

	return nil
}

func (repository *ProfileRepository) GetAvatar(ctx context.Context, bucketName string, objectKey string) (*minio.Object, error) {
	return repository.DBObject.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
}

func (repository *ProfileRepository) DeleteAvatar(ctx context.Context, bucketName string, objectKey string) error {
	err := repository.DBObject.RemoveObject(ctx, bucketName, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return err
	}

	return nil
}
