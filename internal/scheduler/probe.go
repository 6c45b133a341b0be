package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Probe is the connectivity collaborator: a stream of network-class changes
// plus an on-demand current-class query.
type Probe interface {
	// Current returns the network class right now.
	Current() Class

	// Events emits a value whenever the class changes.
	Events() <-chan Class

	// Close stops the probe and closes the events channel.
	Close() error
}

// fileState is the wire shape of the platform agent's connectivity file.
type fileState struct {
	Class string `json:"class"`
}

// FileProbe reads the network class from a state file maintained by the
// platform's connectivity agent and watches it with fsnotify. A missing
// file reports ClassUnknown; a file naming no known class likewise.
type FileProbe struct {
	path    string
	watcher *fsnotify.Watcher
	events  chan Class

	mu      sync.Mutex
	last    Class
	done    chan struct{}
	closing sync.Once
}

// NewFileProbe creates a probe watching path. The file's parent directory
// must exist; the file itself may appear later.
func NewFileProbe(path string) (*FileProbe, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: agents typically replace the
	// file atomically via rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch connectivity directory: %w", err)
	}

	p := &FileProbe{
		path:    path,
		watcher: watcher,
		events:  make(chan Class, 8),
		done:    make(chan struct{}),
	}
	p.last = p.read()

	go p.loop()
	return p, nil
}

// Current implements Probe.
func (p *FileProbe) Current() Class {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Events implements Probe.
func (p *FileProbe) Events() <-chan Class {
	return p.events
}

// Close implements Probe.
func (p *FileProbe) Close() error {
	var err error
	p.closing.Do(func() {
		close(p.done)
		err = p.watcher.Close()
	})
	return err
}

func (p *FileProbe) loop() {
	defer close(p.events)

	for {
		select {
		case <-p.done:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			p.refresh()

		case _, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			// Watcher hiccups are recoverable; re-read the state file.
			p.refresh()
		}
	}
}

func (p *FileProbe) refresh() {
	class := p.read()

	p.mu.Lock()
	changed := class != p.last
	p.last = class
	p.mu.Unlock()

	if !changed {
		return
	}
	select {
	case p.events <- class:
	case <-p.done:
	}
}

func (p *FileProbe) read() Class {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ClassUnknown
		}
		return ClassUnknown
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return ClassUnknown
	}
	return ParseClass(state.Class)
}

// StaticProbe reports a fixed class and never emits events. Used by the
// one-shot sync command and in tests.
type StaticProbe Class

// Current implements Probe.
func (p StaticProbe) Current() Class { return Class(p) }

// Events implements Probe.
func (p StaticProbe) Events() <-chan Class { return nil }

// Close implements Probe.
func (p StaticProbe) Close() error { return nil }
