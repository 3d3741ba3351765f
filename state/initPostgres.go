package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/entity"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitPostgres(dsn string) (*gorm.DB, *sql.DB, error) {
	return openDB(postgres.Open(dsn), "Postgres", 100)
}

// InitSqlite opens a local database file (or ":memory:") with the same schema as Postgres.
func InitSqlite(path string) (*gorm.DB, *sql.DB, error) {
	// a single connection keeps ":memory:" databases shared across queries
	return openDB(sqlite.Open(path), "Sqlite", 1)
}

func openDB(dialector gorm.Dialector, name string, maxOpen int) (*gorm.DB, *sql.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// members may reference profiles that live in the auth provider
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		log.Error().Msg(fmt.Errorf("failed to connect to database: %w", err).Error())
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error().Msg(fmt.Errorf("failed to get underlying sql.DB: %w", err).Error())
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxIdleTime(300 * time.Second)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	log.Info().Msgf("%s database connection established successfully", name)
	return db, sqlDB, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entity.Profile{},
		&entity.Group{},
		&entity.GroupMember{},
		&entity.Message{},
		&entity.MessageRead{},
		&entity.DeadLetter{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
