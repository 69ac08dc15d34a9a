package bootstrap

import (
	"log/slog"

	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideSQLStore(db *gorm.DB) *history.SQLStore {
	if db == nil {
		return nil
	}
	return history.NewSQLStore(db)
}

func ProvideRedisStore(redisClient *redis.Client) *history.RedisStore {
	if redisClient == nil {
		return nil
	}
	return history.NewRedisStore(redisClient)
}

// ProvideRecorder fans completed transcriptions out to every configured store.
func ProvideRecorder(journal *history.SQLStore, cache *history.RedisStore, log *slog.Logger) history.Recorder {
	var recorders history.MultiRecorder
	if journal != nil {
		recorders = append(recorders, journal)
	}
	if cache != nil {
		recorders = append(recorders, cache)
	}
	if len(recorders) == 0 {
		log.Info("transcript history disabled")
		return history.NopRecorder{}
	}
	return recorders
}

func RunMigrations(journal *history.SQLStore) error {
	if journal == nil {
		return nil
	}
	return journal.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideSQLStore,
		ProvideRedisStore,
		ProvideRecorder,
	),
	fx.Invoke(RunMigrations),
)
