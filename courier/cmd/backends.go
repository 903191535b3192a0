package cmd

import (
	"context"
	"fmt"

	"courier/courier/config"
	"courier/courier/controllers"
	"courier/courier/sources/docstore"
	"courier/courier/sources/identity"
	"courier/courier/sources/psql"
	"courier/courier/sources/psql/dao"
	"courier/courier/sources/pubsub"
	"courier/courier/sources/push"
	"courier/courier/sources/storage"
	"courier/courier/utils/logging"
	"courier/courier/utils/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backends are the shared services every gateway client talks to.
type backends struct {
	db        *psql.Database
	redis     *redis.Client
	users     *dao.UserDAO
	documents docstore.Store
	blobs     *storage.MinIOClient
	pushState push.State
	tokens    *identity.Tokens
	metrics   *metrics.Metrics
}

// openBackends connects everything cfg names. Without REDIS_URL change
// notifications and push state stay in this process.
func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	log := logging.AppLogger
	b := &backends{
		tokens:  identity.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
		metrics: metrics.New(),
	}

	db, err := psql.NewDatabase(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	b.db = db
	b.users = dao.NewUserDAO(db.DB)

	var notifier pubsub.Notifier = pubsub.NewLocal()
	b.pushState = push.NewMemoryState()
	if cfg.RedisURL != "" {
		client, err := pubsub.NewRedisClient(cfg.RedisURL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			b.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.redis = client
		notifier = pubsub.NewRedis(client)
		b.pushState = push.NewRedisState(client)
		log.Info("using redis for change notifications and push state")
	}
	b.documents = docstore.NewSQLStore(dao.NewDocumentDAO(db.DB), notifier, log)

	blobs, err := storage.NewMinIOClient(ctx, cfg, log)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("minio: %w", err)
	}
	b.blobs = blobs
	return b, nil
}

func (b *backends) gatewayController() *controllers.GatewayController {
	return controllers.NewGatewayController(b.tokens, b.documents, b.blobs, b.pushState, b.metrics, logging.AppLogger)
}

func (b *backends) healthChecks() map[string]controllers.Check {
	checks := map[string]controllers.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := b.db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if b.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return b.redis.Ping(ctx).Err() }
	}
	return checks
}

func (b *backends) close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logging.AppLogger.Warn("redis close", zap.Error(err))
		}
	}
	if b.db != nil {
		b.db.Close()
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logging.InitLogger(cfg.LogDir, cfg.IsDevelopment())
	return cfg, nil
}
