package config

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// EnsureAdmin creates the initial administrator account from ADMIN_USERNAME
// and ADMIN_PASSWORD when it does not exist yet. Without it there is no way
// to sign in to a fresh deployment.
func EnsureAdmin(db *pgxpool.Pool, config *koanf.Koanf, log *zap.Logger) {
	username := strings.ToLower(config.String("ADMIN_USERNAME"))
	password := config.String("ADMIN_PASSWORD")
	if username == "" || password == "" {
		log.Debug("no admin credentials configured, skipping bootstrap")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var existing uuid.UUID
	err := db.QueryRow(ctx, "SELECT id FROM users WHERE username=$1 LIMIT 1", username).Scan(&existing)
	if err == nil {
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Fatal("failed to check for admin account", zap.Error(err))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("failed to hash admin password", zap.Error(err))
	}

	now := time.Now().UTC()
	_, err = db.Exec(ctx,
		"INSERT INTO users (id, username, email, password, jellyfin_user_id, disabled, is_admin, create_datetime, update_datetime) VALUES ($1,$2,NULL,$3,'',false,true,$4,$4)",
		uuid.New(), username, string(hashedPassword), now)
	if err != nil {
		log.Fatal("failed to create admin account", zap.Error(err))
	}

	log.Info("created initial admin account", zap.String("username", username))
}
