package config

import (
	"context"
	"time"

	"github.com/mkonradi/jellywarden/internal/jellyfin"

	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

func NewJellyfinClient(config *koanf.Koanf, log *zap.Logger) *jellyfin.Client {
	baseURL := config.String("JELLYFIN_URL")
	apiKey := config.String("JELLYFIN_API_KEY")
	if baseURL == "" || apiKey == "" {
		log.Fatal("JELLYFIN_URL and JELLYFIN_API_KEY are required")
	}

	client := jellyfin.NewClient(baseURL, apiKey, 15*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := client.SystemInfo(ctx)
	if err != nil {
		log.Fatal("failed to reach jellyfin server", zap.Error(err))
	}

	log.Info("connected to jellyfin server", zap.String("name", info.ServerName), zap.String("version", info.Version))

	return client
}
