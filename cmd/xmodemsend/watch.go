package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// imageWatcher narrows gravwell-gravwell/filewatch/filewatch.go's
// multi-file fsnotify event switch down to the one case xmodemsend
// needs: a Create or Write event for a single named file triggers one
// callback, everything else is ignored.
type imageWatcher struct {
	w *fsnotify.Watcher
}

func newImageWatcher(dir string) (*imageWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &imageWatcher{w: w}, nil
}

func (iw *imageWatcher) Close() error { return iw.w.Close() }

// run blocks, invoking onRebuild every time name is created or rewritten
// in the watched directory, until the watcher's Events/Errors channels
// close.
func (iw *imageWatcher) run(name string, onRebuild func() error) error {
	for {
		select {
		case evt, ok := <-iw.w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(evt.Name) != name {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			fmt.Printf("xmodemsend: detected rebuild of %s\n", name)
			if err := onRebuild(); err != nil {
				fmt.Fprintln(os.Stderr, "xmodemsend: resend failed:", err)
			}
		case err, ok := <-iw.w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "xmodemsend: watch error:", err)
		}
	}
}
