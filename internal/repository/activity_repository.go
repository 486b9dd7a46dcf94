package repository

import (
	"context"

	"github.com/mkonradi/jellywarden/internal/model"
	"github.com/google/uuid"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ActivityRepository struct {
	Log *zap.Logger
	DB  *pgxpool.Pool
}

func NewActivityRepository(zap *zap.Logger, db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{
		Log: zap,
		DB:  db,
	}
}

func (repository *ActivityRepository) Record(ctx context.Context, activity model.Activity) error {
	query := "INSERT INTO activities (id, kind, subject, actor_id, detail, create_datetime) VALUES ($1,$2,$3,$4,$5,$6)"

	_, err := repository.DB.Exec(ctx, query, activity.Id, activity.Kind, activity.Subject, activity.ActorId, activity.Detail, activity.CreateDatetime)
	if err != nil {
		return err
	}

	return nil
}

// RecordTx writes the activity row inside the caller's transaction so the
// audit entry commits or rolls back together with the change it describes.
func (repository *ActivityRepository) RecordTx(ctx context.Context, tx pgx.Tx, activity model.Activity) error {
	query := "INSERT INTO activities (id, kind, subject, actor_id, detail, create_datetime) VALUES ($1,$2,$3,$4,$5,$6)"

	_, err := tx.Exec(ctx, query, activity.Id, activity.Kind, activity.Subject, activity.ActorId, activity.Detail, activity.CreateDatetime)
	if err != nil {
		return err
	}

	return nil
}

func (repository *ActivityRepository) GetActivities(ctx context.Context, limit int, cursor *model.ActivityCursor) ([]model.Activity, error) {
	var rows pgx.Rows
	var err error

	// Check if cursor is provided (not first page)
	if cursor.Id != uuid.Nil && !cursor.CreateDatetime.IsZero() {
		queryWithCursor := `
			SELECT id, kind, subject, actor_id, detail, create_datetime
			FROM activities
			WHERE (create_datetime < $1 OR (create_datetime = $1 AND id < $2))
			ORDER BY create_datetime DESC, id DESC
			LIMIT $3
		`
		rows, err = repository.DB.Query(ctx, queryWithCursor, cursor.CreateDatetime, cursor.Id, limit)
	} else {
		query := `
			SELECT id, kind, subject, actor_id, detail, create_datetime
			FROM activities
			ORDER BY create_datetime DESC, id DESC
			LIMIT $1
		`
		rows, err = repository.DB.Query(ctx, query, limit)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []model.Activity{}

	for rows.Next() {
		var activity model.Activity
		err := rows.Scan(&activity.Id, &activity.Kind, &activity.Subject, &activity.ActorId, &activity.Detail, &activity.CreateDatetime)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return activities, nil
}
