package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RoomConfig struct {
	ReadDebounce      time.Duration `mapstructure:"READ_DEBOUNCE"`
	InitialReadDelay  time.Duration `mapstructure:"INITIAL_READ_DELAY"`
	ResubscribeDelay  time.Duration `mapstructure:"RESUBSCRIBE_DELAY"`
	BottomThreshold   float64       `mapstructure:"BOTTOM_THRESHOLD"`
	ViewportTolerance float64       `mapstructure:"VIEWPORT_TOLERANCE"`
	IncomingPulse     time.Duration `mapstructure:"INCOMING_PULSE"`
	SentStatusClear   time.Duration `mapstructure:"SENT_STATUS_CLEAR"`
	ErrorStatusClear  time.Duration `mapstructure:"ERROR_STATUS_CLEAR"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"ADDR"`
	Password     string        `mapstructure:"PASSWORD"`
	DB           int           `mapstructure:"DB"`
	PoolSize     int           `mapstructure:"POOL_SIZE"`
	MaxIdleConns int           `mapstructure:"MAX_IDLE_CONNS"`
	Timeout      time.Duration `mapstructure:"TIMEOUT"`
}

type AppConfig struct {
	App struct {
		Name string `mapstructure:"NAME"`
		Port string `mapstructure:"PORT"`
	}

	DATABASE struct {
		Driver   string `mapstructure:"DRIVER"`
		Postgres struct {
			DSN string `mapstructure:"URL"`
		}
		Sqlite struct {
			Path string `mapstructure:"PATH"`
		}
		Redis RedisConfig
	}

	REALTIME struct {
		// QUEUED routes change notifications through the redis job queue and worker pool
		Queued  bool `mapstructure:"QUEUED"`
		Workers int  `mapstructure:"WORKERS"`
	}

	ROOM RoomConfig
}

var Conf *AppConfig

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP.NAME", "crew-chat")
	v.SetDefault("APP.PORT", ":8080")
	v.SetDefault("DATABASE.DRIVER", "postgres")
	v.SetDefault("DATABASE.SQLITE.PATH", "crew.db")
	redis := DefaultRedisConfig()
	v.SetDefault("DATABASE.REDIS.ADDR", redis.Addr)
	v.SetDefault("DATABASE.REDIS.POOL_SIZE", redis.PoolSize)
	v.SetDefault("DATABASE.REDIS.MAX_IDLE_CONNS", redis.MaxIdleConns)
	v.SetDefault("DATABASE.REDIS.TIMEOUT", redis.Timeout)
	v.SetDefault("REALTIME.QUEUED", true)
	v.SetDefault("REALTIME.WORKERS", 5)

	room := DefaultRoomConfig()
	v.SetDefault("ROOM.READ_DEBOUNCE", room.ReadDebounce)
	v.SetDefault("ROOM.INITIAL_READ_DELAY", room.InitialReadDelay)
	v.SetDefault("ROOM.RESUBSCRIBE_DELAY", room.ResubscribeDelay)
	v.SetDefault("ROOM.BOTTOM_THRESHOLD", room.BottomThreshold)
	v.SetDefault("ROOM.VIEWPORT_TOLERANCE", room.ViewportTolerance)
	v.SetDefault("ROOM.INCOMING_PULSE", room.IncomingPulse)
	v.SetDefault("ROOM.SENT_STATUS_CLEAR", room.SentStatusClear)
	v.SetDefault("ROOM.ERROR_STATUS_CLEAR", room.ErrorStatusClear)
	v.SetDefault("ROOM.REQUEST_TIMEOUT", room.RequestTimeout)
}

// DefaultRedisConfig sizes the pool for one relay process; the CLI needs far less.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     50,
		MaxIdleConns: 10,
		Timeout:      5 * time.Second,
	}
}

// DefaultRoomConfig returns the timings the chat room uses when nothing is configured.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		ReadDebounce:      500 * time.Millisecond,
		InitialReadDelay:  time.Second,
		ResubscribeDelay:  3 * time.Second,
		BottomThreshold:   100,
		ViewportTolerance: 50,
		IncomingPulse:     1500 * time.Millisecond,
		SentStatusClear:   2 * time.Second,
		ErrorStatusClear:  3 * time.Second,
		RequestTimeout:    10 * time.Second,
	}
}

func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHATAPP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Warn().Msg("application.yaml not found, using defaults and environment")
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	Conf = &config
	log.Info().Msg("configuration loaded...")
	return nil
}
