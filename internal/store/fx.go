package store

import (
	"context"
	"fmt"

	"github.com/geocubed/cubehub/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Params collects store construction dependencies.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
}

// New constructs the store backend selected by configuration.
func New(p Params) (Store, error) {
	log := p.Log.Named("store")

	switch p.Cfg.StoreBackend {
	case config.StoreCache:
		client := redis.NewClient(&redis.Options{
			Addr:     p.Cfg.RedisAddr,
			Password: p.Cfg.RedisPassword,
			DB:       p.Cfg.RedisDB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return client.Close()
			},
		})
		log.Info("using redis store", zap.String("addr", p.Cfg.RedisAddr))
		return NewRedis(client), nil

	case config.StoreDisk:
		db, err := gorm.Open(sqlite.Open(p.Cfg.SQLitePath), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("using disk store", zap.String("path", p.Cfg.SQLitePath))
		return NewDisk(db)

	case config.StoreMemory:
		log.Info("using in-memory store")
		return NewMemory(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", p.Cfg.StoreBackend)
	}
}

// Module wires the key/value store.
var Module = fx.Module("store",
	fx.Provide(New),
)
