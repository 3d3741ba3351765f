package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/config"
	"gorm.io/gorm"
)

type AppState struct {
	Ctx    context.Context
	Cancel context.CancelFunc
	DB     *gorm.DB
	SQL    *sql.DB
	Redis  *redis.Client
}

func InitAppState(ctx context.Context, cancel context.CancelFunc) (*AppState, error) {
	conf := config.Conf

	var (
		db    *gorm.DB
		sqlDB *sql.DB
		err   error
	)
	switch conf.DATABASE.Driver {
	case "sqlite":
		db, sqlDB, err = InitSqlite(conf.DATABASE.Sqlite.Path)
	case "postgres", "":
		db, sqlDB, err = InitPostgres(conf.DATABASE.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.DATABASE.Driver)
	}
	if err != nil {
		return nil, err
	}

	rdb, err := InitRedis(conf.DATABASE.Redis)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &AppState{
		Ctx:    ctx,
		Cancel: cancel,
		DB:     db,
		SQL:    sqlDB,
		Redis:  rdb,
	}, nil
}

func (a *AppState) Close() {
	if a.SQL != nil {
		log.Info().Msg("Closing database connection...")
		if err := a.SQL.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}

	if a.Redis != nil {
		log.Info().Msg("Closing Redis client...")
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis client")
		}
	}
}
