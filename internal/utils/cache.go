package utils

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	app_error "github.com/xenn00/crew-chat/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func GetCacheData[T any](ctx context.Context, rdb *redis.Client, cacheKey string) (*T, *app_error.AppError) {
	val, err := rdb.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		return nil, nil // cache-miss
	} else if err != nil {
		return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occur when trying to get from redis", "redis")
	}

	var data T
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occur when unmarshal json", "json")
	}

	return &data, nil
}

func SetCacheData[T any](ctx context.Context, rdb *redis.Client, cacheKey string, data *T, expire time.Duration) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", cacheKey, err)
	}

	return rdb.Set(ctx, cacheKey, bytes, expire).Err()
}

func DeleteCacheData(ctx context.Context, rdb *redis.Client, cacheKey string) error {
	return rdb.Del(ctx, cacheKey).Err()
}

// Cached serves cacheKey from redis and falls back to load on a miss. A nil client or
// a broken cache only costs the extra load.
func Cached[T any](ctx context.Context, rdb *redis.Client, cacheKey string, expire time.Duration, load func(context.Context) (*T, *app_error.AppError)) (*T, *app_error.AppError) {
	if rdb == nil {
		return load(ctx)
	}

	data, cacheErr := GetCacheData[T](ctx, rdb, cacheKey)
	if cacheErr != nil {
		log.Warn().Str("key", cacheKey).Str("reason", cacheErr.Message).Msg("cache read failed")
	}
	if data != nil {
		return data, nil
	}

	data, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if err := SetCacheData(ctx, rdb, cacheKey, data, expire); err != nil {
		log.Warn().Err(err).Str("key", cacheKey).Msg("cache write failed")
	}
	return data, nil
}
