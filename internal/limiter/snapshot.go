package limiter

import (
	"sort"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
)

// Snapshot is an immutable view of the limited apps
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	apps     map[string]storage.LimitedApp
}

// NewSnapshot builds a snapshot. Invalid apps are returned separately and
// left out. A later duplicate replaces an earlier one.
func NewSnapshot(version uint64, loadedAt time.Time, apps []storage.LimitedApp) (*Snapshot, []storage.LimitedApp) {
	s := &Snapshot{
		Version:  version,
		LoadedAt: loadedAt,
		apps:     make(map[string]storage.LimitedApp, len(apps)),
	}

	var rejected []storage.LimitedApp
	for _, app := range apps {
		if err := app.Validate(); err != nil {
			rejected = append(rejected, app)
			continue
		}
		s.apps[app.PackageName] = app
	}
	return s, rejected
}

// Lookup returns the limited app for a package. A nil snapshot is empty.
func (s *Snapshot) Lookup(pkg string) (storage.LimitedApp, bool) {
	if s == nil || pkg == "" {
		return storage.LimitedApp{}, false
	}
	app, ok := s.apps[pkg]
	return app, ok
}

// Len returns the number of limited apps
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.apps)
}

// Apps returns the limited apps sorted by package name
func (s *Snapshot) Apps() []storage.LimitedApp {
	if s == nil {
		return nil
	}
	apps := make([]storage.LimitedApp, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].PackageName < apps[j].PackageName })
	return apps
}
