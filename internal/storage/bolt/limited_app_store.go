package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"go.etcd.io/bbolt"
)

type limitedAppStore struct {
	db *bbolt.DB
}

func (s *limitedAppStore) GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error) {
	apps, err := listBucket[storage.LimitedApp](ctx, s.db, bucketLimitedApps)
	if err != nil {
		return nil, err
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].PackageName < apps[j].PackageName })
	return apps, nil
}

func (s *limitedAppStore) Get(ctx context.Context, packageName string) (*storage.LimitedApp, error) {
	return getBucketValue[storage.LimitedApp](ctx, s.db, bucketLimitedApps, packageName)
}

func (s *limitedAppStore) Upsert(ctx context.Context, app storage.LimitedApp) error {
	if err := app.Validate(); err != nil {
		return err
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = time.Now().UTC()
	}
	return putBucketValue(ctx, s.db, bucketLimitedApps, app.PackageName, app)
}

func (s *limitedAppStore) Delete(ctx context.Context, packageName string) error {
	return deleteBucketValue(ctx, s.db, bucketLimitedApps, packageName)
}
