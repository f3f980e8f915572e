package file

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/omalloc/spancache/contrib/config"
)

var _ config.Source = (*file)(nil)

var errWatcherStopped = errors.New("file watcher stopped")

type file struct {
	path string
}

// NewSource returns a source reading the file at path.
func NewSource(path string) config.Source {
	return &file{path: path}
}

func (f *file) Load() ([]*config.KeyValue, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	return []*config.KeyValue{{
		Key:    filepath.Base(f.path),
		Value:  data,
		Format: format(f.path),
	}}, nil
}

func format(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

func (f *file) Watch() (config.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory, editors replace files by rename.
	if err := fw.Add(filepath.Dir(f.path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &watcher{f: f, fw: fw}, nil
}

type watcher struct {
	f  *file
	fw *fsnotify.Watcher
}

func (w *watcher) Next() ([]*config.KeyValue, error) {
	target := filepath.Clean(w.f.path)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil, errWatcherStopped
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			return w.f.Load()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil, errWatcherStopped
			}
			return nil, err
		}
	}
}

func (w *watcher) Stop() error {
	return w.fw.Close()
}
