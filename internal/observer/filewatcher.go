package observer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"
)

// ChangeCallback is called once per burst of changes to the watched file
type ChangeCallback func(path string)

// FileWatcher monitors a single job file. The parent directory is watched
// so editors that save through rename-and-replace are still noticed.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ChangeCallback
	debounce time.Duration
	logger   arbor.ILogger

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFileWatcher creates a watcher for path
func NewFileWatcher(path string, callback ChangeCallback, logger arbor.ILogger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileWatcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid saves
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) {
	ctx, fw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(fw.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.watcher.Events:
				if !ok {
					return
				}
				fw.handleEvent(event)
			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				fw.logger.Warn().Err(err).Str("path", fw.path).Msg("File watcher error")
			}
		}
	}()
}

// Stop stops watching and waits for the event loop to exit
func (fw *FileWatcher) Stop() {
	if fw.cancel != nil {
		fw.cancel()
		<-fw.done
	}
	fw.watcher.Close()

	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
}

// Path returns the absolute path being watched
func (fw *FileWatcher) Path() string { return fw.path }

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, fw.flush)
}

func (fw *FileWatcher) flush() {
	if fw.callback == nil {
		return
	}
	fw.logger.Info().Str("path", fw.path).Msg("Job file changed")
	fw.callback(fw.path)
}

// SetDebounce sets the debounce duration for batching file changes
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounce = d
}
