package assets

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func newTestCatalog(t *testing.T) (*FontCatalog, string) {
	t.Helper()
	dir := t.TempDir()
	fc, err := NewFontCatalog()
	require.NoError(t, err)
	t.Cleanup(func() { _ = fc.Close() })
	return fc, dir
}

func TestFontCatalog_IndexesExistingFonts(t *testing.T) {
	fc, dir := newTestCatalog(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GoRegular.ttf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "Mono.otf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("fonts"), 0o644))

	require.NoError(t, fc.Initialize(dir))

	fonts := fc.List()
	require.Len(t, fonts, 2)
	assert.Equal(t, "GoRegular", fonts[0].Name)
	assert.Equal(t, "Mono", fonts[1].Name)

	info, ok := fc.Lookup("goregular")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "GoRegular.ttf"), info.Path)

	path, ok := fc.Resolve("fonts/Mono.otf")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "nested", "Mono.otf"), path)

	_, ok = fc.Lookup("README")
	assert.False(t, ok)

	for i := 0; i < 2; i++ {
		select {
		case e := <-fc.Events():
			assert.Equal(t, FONT_EVENT_ADDED, e.Op)
		case <-time.After(time.Second):
			t.Fatal("missing added event")
		}
	}
}

func TestFontCatalog_FollowsChanges(t *testing.T) {
	fc, dir := newTestCatalog(t)
	require.NoError(t, fc.Initialize(dir))

	var mu sync.Mutex
	var seen []FontEvent
	go func() {
		for e := range fc.Events() {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		}
	}()

	path := filepath.Join(dir, "Late.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))
	require.Eventually(t, func() bool {
		_, ok := fc.Lookup("Late")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	sub := filepath.Join(dir, "more")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// the new directory has to be watched before files in it are seen
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "Deep.fnt"), []byte("info"), 0o644)
		_, ok := fc.Lookup("Deep")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, ok := fc.Lookup("Late")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range seen {
			if e.Op == FONT_EVENT_REMOVED && e.Font.Name == "Late" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFontCatalog_Close(t *testing.T) {
	fc, dir := newTestCatalog(t)
	require.NoError(t, fc.Initialize(dir))
	require.NoError(t, fc.Close())
	require.NoError(t, fc.Close())

	assert.ErrorIs(t, fc.Initialize(dir), ErrCatalogClosed)

	// drain whatever was buffered; the channel must end up closed
	for range fc.Events() {
	}

	unstarted, err := NewFontCatalog()
	require.NoError(t, err)
	require.NoError(t, unstarted.Close())
	_, ok := <-unstarted.Events()
	assert.False(t, ok)
}

func TestFontCatalog_EventsCloseWithWatcher(t *testing.T) {
	fc, dir := newTestCatalog(t)
	require.NoError(t, fc.Initialize(dir))

	// the watcher going away on its own ends the event stream too
	require.NoError(t, fc.fsnotify.Close())

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range fc.Events() {
		}
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("events channel still open after the watcher closed")
	}

	assert.ErrorIs(t, fc.Initialize(dir), ErrCatalogClosed)
	assert.NoError(t, fc.Close())
}
