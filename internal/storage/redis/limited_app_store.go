package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"github.com/redis/go-redis/v9"
)

// limitedAppStore keeps every limited app as a JSON field of one hash
type limitedAppStore struct {
	client *redis.Client
}

func (s *limitedAppStore) GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error) {
	values, err := s.client.HGetAll(ctx, keyLimitedApps).Result()
	if err != nil {
		return nil, err
	}

	apps := make([]storage.LimitedApp, 0, len(values))
	for field, raw := range values {
		var app storage.LimitedApp
		if err := json.Unmarshal([]byte(raw), &app); err != nil {
			return nil, fmt.Errorf("failed to parse limited app %s: %w", field, err)
		}
		apps = append(apps, app)
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].PackageName < apps[j].PackageName })
	return apps, nil
}

func (s *limitedAppStore) Get(ctx context.Context, packageName string) (*storage.LimitedApp, error) {
	raw, err := s.client.HGet(ctx, keyLimitedApps, packageName).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var app storage.LimitedApp
	if err := json.Unmarshal([]byte(raw), &app); err != nil {
		return nil, fmt.Errorf("failed to parse limited app %s: %w", packageName, err)
	}
	return &app, nil
}

func (s *limitedAppStore) Upsert(ctx context.Context, app storage.LimitedApp) error {
	if err := app.Validate(); err != nil {
		return err
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal limited app: %w", err)
	}
	return s.client.HSet(ctx, keyLimitedApps, app.PackageName, data).Err()
}

func (s *limitedAppStore) Delete(ctx context.Context, packageName string) error {
	removed, err := s.client.HDel(ctx, keyLimitedApps, packageName).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}
