package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/screenguard/internal/config"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keySessionPrefix = "screenguard:session:"
	keySessions      = "screenguard:sessions"
	keyDailyPrefix   = "screenguard:usage:daily:"
	keyDailyIndex    = "screenguard:usage:daily:index:"
	keyDailyDates    = "screenguard:usage:daily:dates"
	keyLimitedApps   = "screenguard:limited_apps"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client          *redis.Client
	sessionStore    *sessionStore
	limitedAppStore *limitedAppStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client: client,
		sessionStore: &sessionStore{
			client:       client,
			insertScript: redis.NewScript(insertSessionScript),
			deleteDay:    redis.NewScript(deleteDayScript),
		},
		limitedAppStore: &limitedAppStore{client: client},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return s.sessionStore
}

// LimitedApps returns the LimitedAppStore implementation
func (s *Store) LimitedApps() storage.LimitedAppStore {
	return s.limitedAppStore
}

func sessionKey(id string) string {
	return keySessionPrefix + id
}

func dailyUsageKey(date, packageName string) string {
	return fmt.Sprintf("%s%s:%s", keyDailyPrefix, date, packageName)
}

func dailyIndexKey(date string) string {
	return keyDailyIndex + date
}
