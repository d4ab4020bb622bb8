package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/typeset/engine/assets/loaders"
	"github.com/spaghettifunk/typeset/engine/core"
)

var ErrCatalogClosed = errors.New("font catalog already closed")

// FontInfo describes a font file found in the catalog.
type FontInfo struct {
	// Name is the file name without its extension.
	Name     string
	Path     string
	LastSeen time.Time
}

type FontEventOp int

const (
	FONT_EVENT_ADDED FontEventOp = iota
	FONT_EVENT_UPDATED
	FONT_EVENT_REMOVED
)

func (op FontEventOp) String() string {
	switch op {
	case FONT_EVENT_ADDED:
		return "added"
	case FONT_EVENT_UPDATED:
		return "updated"
	default:
		return "removed"
	}
}

type FontEvent struct {
	Op   FontEventOp
	Font FontInfo
}

// eventBuffer is how many events are kept for a slow reader before new
// ones are dropped.
const eventBuffer = 64

/**
 * @brief Keeps an index of the font files below a directory, kept up to date
 * through filesystem notifications.
 */
type FontCatalog struct {
	fonts map[string]FontInfo
	mutex sync.RWMutex

	done      chan struct{}
	stopped   chan struct{}
	fsnotify  *fsnotify.Watcher
	closeOnce sync.Once
	isClosed  bool
	started   bool
	events    chan FontEvent

	// guarded by mutex, like isClosed
	eventsClosed bool
}

func NewFontCatalog() (*FontCatalog, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FontCatalog{
		fonts:    make(map[string]FontInfo),
		fsnotify: fsWatch,
		events:   make(chan FontEvent, eventBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes fontsDir and every directory below it and starts
// watching them.
func (fc *FontCatalog) Initialize(fontsDir string) error {
	fc.mutex.Lock()
	if fc.isClosed {
		fc.mutex.Unlock()
		return ErrCatalogClosed
	}
	first := !fc.started
	fc.started = true
	fc.mutex.Unlock()

	if err := fc.watchRecursive(fontsDir); err != nil {
		return err
	}
	if first {
		go fc.start()
	}
	core.LogDebug("font catalog watching '%s' (%d fonts)", fontsDir, len(fc.List()))
	return nil
}

func catalogKey(name string) string {
	return strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
}

// Lookup finds a font by name, case insensitive. Names may carry an
// extension or a directory, only the base name counts.
func (fc *FontCatalog) Lookup(name string) (FontInfo, bool) {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	info, ok := fc.fonts[catalogKey(name)]
	return info, ok
}

// Resolve returns the path of the font called name.
func (fc *FontCatalog) Resolve(name string) (string, bool) {
	info, ok := fc.Lookup(name)
	return info.Path, ok
}

// List returns every indexed font sorted by name.
func (fc *FontCatalog) List() []FontInfo {
	fc.mutex.RLock()
	out := make([]FontInfo, 0, len(fc.fonts))
	for _, info := range fc.fonts {
		out = append(out, info)
	}
	fc.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Events delivers changes to the index. It is closed by Close.
func (fc *FontCatalog) Events() <-chan FontEvent {
	return fc.events
}

func (fc *FontCatalog) Close() error {
	var err error
	fc.closeOnce.Do(func() {
		fc.mutex.Lock()
		fc.isClosed = true
		started := fc.started
		fc.mutex.Unlock()

		close(fc.done)
		if started {
			<-fc.stopped
		} else {
			err = fc.fsnotify.Close()
			fc.closeEvents()
		}
	})
	return err
}

// closeEvents marks the catalog closed and closes the event channel once.
// Nothing is published afterwards.
func (fc *FontCatalog) closeEvents() {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	fc.isClosed = true
	if !fc.eventsClosed {
		fc.eventsClosed = true
		close(fc.events)
	}
}

func (fc *FontCatalog) start() {
	defer close(fc.stopped)
	// readers ranging over Events finish however the loop ends
	defer fc.closeEvents()
	for {
		select {
		case e, ok := <-fc.fsnotify.Events:
			if !ok {
				core.LogWarn("font catalog: watcher closed, no more changes are followed")
				return
			}
			fc.handleEvent(e)

		case err, ok := <-fc.fsnotify.Errors:
			if !ok {
				core.LogWarn("font catalog: watcher closed, no more changes are followed")
				return
			}
			core.LogError("font catalog: %s", err)

		case <-fc.done:
			fc.fsnotify.Close()
			return
		}
	}
}

func (fc *FontCatalog) handleEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := fc.watchRecursive(e.Name); err != nil {
				core.LogWarn("font catalog: %s", err)
			}
		}
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		fc.indexFile(e.Name)
	}
	// a rename reports the old name; the new one arrives as a create
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		fc.removeFile(e.Name)
	}
}

// watchRecursive adds path and all directories under it to the watch list
// and indexes the fonts it finds.
func (fc *FontCatalog) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fc.fsnotify.Add(walkPath)
		}
		fc.indexFile(walkPath)
		return nil
	})
}

func (fc *FontCatalog) indexFile(path string) {
	if !loaders.IsFontFile(path) {
		return
	}
	key := catalogKey(path)
	info := FontInfo{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:     path,
		LastSeen: time.Now(),
	}

	fc.mutex.Lock()
	_, existed := fc.fonts[key]
	fc.fonts[key] = info
	fc.mutex.Unlock()

	op := FONT_EVENT_ADDED
	if existed {
		op = FONT_EVENT_UPDATED
	}
	fc.publish(FontEvent{Op: op, Font: info})
}

func (fc *FontCatalog) removeFile(path string) {
	key := catalogKey(path)
	fc.mutex.Lock()
	info, ok := fc.fonts[key]
	if ok && info.Path == path {
		delete(fc.fonts, key)
	}
	fc.mutex.Unlock()

	if ok && info.Path == path {
		fc.publish(FontEvent{Op: FONT_EVENT_REMOVED, Font: info})
	}
}

func (fc *FontCatalog) publish(e FontEvent) {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	if fc.isClosed {
		return
	}
	select {
	case fc.events <- e:
	default:
		core.LogWarn("font catalog: dropping %s event for '%s'", e.Op, e.Font.Name)
	}
}
