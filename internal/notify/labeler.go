package notify

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/goodtune/screenguard/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Labeler resolves package names to human-readable app names.
// Configured labels win, then the limited app's display name, then a
// name derived from the last package segment.
type Labeler struct {
	labels  map[string]string
	derived *lru.Cache[string, string]
}

// NewLabeler creates a labeler with an LRU of derived names
func NewLabeler(labels map[string]string, cacheSize int) (*Labeler, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create label cache: %w", err)
	}

	copied := make(map[string]string, len(labels))
	for pkg, label := range labels {
		copied[pkg] = label
	}

	return &Labeler{labels: copied, derived: cache}, nil
}

// Name returns the display name for a limited app
func (l *Labeler) Name(app storage.LimitedApp) string {
	if label, ok := l.configured(app.PackageName); ok {
		return label
	}
	if app.DisplayName != "" {
		return app.DisplayName
	}
	return l.Label(app.PackageName)
}

// Label returns the display name for a bare package
func (l *Labeler) Label(packageName string) string {
	if label, ok := l.configured(packageName); ok {
		return label
	}
	if name, ok := l.derived.Get(packageName); ok {
		return name
	}

	name := deriveName(packageName)
	l.derived.Add(packageName, name)
	return name
}

// configured looks up a configured label. Config keys arrive lowercased.
func (l *Labeler) configured(packageName string) (string, bool) {
	if label, ok := l.labels[packageName]; ok && label != "" {
		return label, true
	}
	if label, ok := l.labels[strings.ToLower(packageName)]; ok && label != "" {
		return label, true
	}
	return "", false
}

// deriveName turns "com.example.video_player" into "Video Player"
func deriveName(packageName string) string {
	segment := strings.TrimRight(packageName, ".")
	if i := strings.LastIndex(segment, "."); i >= 0 {
		segment = segment[i+1:]
	}

	words := strings.FieldsFunc(segment, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return packageName
	}

	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
