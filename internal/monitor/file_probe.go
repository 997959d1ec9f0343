package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ScreenOffMarker in the foreground file means the screen is off
const ScreenOffMarker = "screen_off"

// FileProbe reads the foreground package from a file written by an
// external agent. A missing or empty file means no foreground app.
type FileProbe struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan struct{}
	logger  zerolog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileProbe creates a probe and starts watching the file's directory.
// Agents usually replace the file with a rename, so the directory is
// watched rather than the file itself.
func NewFileProbe(path string, logger zerolog.Logger) (*FileProbe, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to create foreground directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	p := &FileProbe{
		path:    filepath.Clean(path),
		watcher: watcher,
		changes: make(chan struct{}, 1),
		logger:  logger.With().Str("component", "file-probe").Logger(),
		done:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.eventLoop()

	return p, nil
}

// Sample reads the current file contents
func (p *FileProbe) Sample(ctx context.Context) (Sample, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Sample{ScreenOn: true}, nil
		}
		return Sample{}, fmt.Errorf("failed to read foreground file: %w", err)
	}

	pkg := firstLine(string(data))
	if pkg == ScreenOffMarker {
		return Sample{ScreenOn: false}, nil
	}
	return Sample{Package: pkg, ScreenOn: true}, nil
}

// Changes fires after the file is written, created or replaced
func (p *FileProbe) Changes() <-chan struct{} {
	return p.changes
}

// Close stops the watcher
func (p *FileProbe) Close() error {
	close(p.done)
	p.wg.Wait()
	return p.watcher.Close()
}

func (p *FileProbe) eventLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts; one pending signal is enough
			select {
			case p.changes <- struct{}{}:
			default:
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}
