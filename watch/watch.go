// Package watch implements Database.Watch (SPEC_FULL.md §5): an
// fsnotify-backed feed of commit events on a store file, for external
// processes (a vacuum collaborator, a second reader process) that want to
// react to new generations without polling the footer chain themselves.
//
// Grounded on the teacher's internal/watch FSNotifyWatcher (package vfs),
// which wraps github.com/fsnotify/fsnotify the same way: one goroutine
// draining w.Events/w.Errors into buffered channels of a small Op enum.
// Adapted here to forward only fsnotify Write events on the store file;
// Create, Remove, Rename and Chmod events are dropped. fsnotify reports no
// byte range, so a forwarded event is not limited to the header swing that
// every commit performs (database.CommitFooter).
package watch

import (
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Event reports an fsnotify Write on path's store file. A reader that only
// cares about new generations can treat an Event as a cue to open the
// Database again (or re-walk the footer chain) and compare footers.
type Event struct {
	Path string
}

// Watcher streams Events for one store file. Every Write event fsnotify
// reports for the file is forwarded, including one caused by a transaction
// that has not committed (fsnotify also reports a file resize, such as an
// AllocRW that grows the store, as a Write), so an Event does not by itself
// mean that a new generation exists.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan Event
	errors chan error
	closed atomic.Bool
}

// Watch starts watching path (a store file) for commits. The caller must
// Close the returned Watcher when done.
func Watch(path string) (*Watcher, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()

		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan Event, 64),
		errors: make(chan error, 1),
	}

	go w.loop(path)

	return w, nil
}

func (w *Watcher) loop(path string) {
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Only Write events are forwarded; Create/Rename/Remove/Chmod
			// are not.
			if ev.Op&fsnotify.Write != 0 {
				select {
				case w.events <- Event{Path: path}:
				default:
					// A slow consumer drops events rather than blocking the
					// watch loop; it can always recover the latest state by
					// re-reading the footer chain.
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// Events returns the channel of commit notifications. It is closed when
// the Watcher is closed.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of underlying fsnotify errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	return w.fsw.Close()
}
