package engine

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
	"github.com/spaghettifunk/typeset/engine/systems"
)

var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

func writeFonts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GoRegular.ttf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GoBold.ttf"), gobold.TTF, 0o644))
	return dir
}

func testConfig(t *testing.T) *ApplicationConfig {
	t.Helper()
	config := DefaultApplicationConfig()
	config.StartWidth = 200
	config.StartHeight = 80
	config.TargetFPS = 0
	config.LogLevel = "error"
	config.FontDir = writeFonts(t)
	config.Fonts = []systems.FontConfig{
		{Font: "GoRegular"},
		{Font: "GoBold", Style: "bold"},
	}
	t.Cleanup(func() { core.SetLogLevel(core.InfoLevel) })
	return &config
}

func newTestEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	e, err := New(g)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	require.NoError(t, e.Initialize())
	return e
}

// frameUntil runs frames until done reports true or a few seconds passed.
func frameUntil(t *testing.T, e *Engine, done func(metadata.FrameReport) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		report, err := e.Frame()
		require.NoError(t, err)
		if done(report) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestEngine_LabelsReachFramebuffer(t *testing.T) {
	var ready, hasThin bool
	var extent float32
	g := &Game{
		ApplicationConfig: testConfig(t),
		FnUpdate: func(f *Frame) error {
			f.SetFontSize(24)
			e, ok := f.LabelAt(10, 10, "Hello", white)
			extent, ready = e.Width, ok
			f.SetFontStyle(metadata.TEXT_STYLE_BOLD)
			f.Label("World", white)
			hasThin = f.SetFontStyle(metadata.TEXT_STYLE_THIN)
			return nil
		},
	}
	e := newTestEngine(t, g)
	require.NotNil(t, g.SystemManager)

	frameUntil(t, e, func(r metadata.FrameReport) bool { return r.Drawn == 2 })
	assert.True(t, ready)
	assert.Greater(t, extent, float32(0))
	assert.False(t, hasThin)
	assert.Zero(t, e.LastReport().Pending)

	fb := e.Framebuffer()
	lit := 0
	for y := 0; y < fb.Bounds().Dy(); y++ {
		for x := 0; x < fb.Bounds().Dx(); x++ {
			if fb.RGBAAt(x, y) != renderer.DefaultClearColor {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0)
	assert.Equal(t, renderer.DefaultClearColor, fb.RGBAAt(0, 0))

	stats := e.SystemManager().TextSystem().Stats()
	assert.Equal(t, 2, stats.Cached)
	assert.GreaterOrEqual(t, stats.Submitted, int64(2))
	assert.Equal(t, 2, stats.Fonts)
}

func TestEngine_LabelCursor(t *testing.T) {
	var first, second int
	var unknown bool
	g := &Game{
		ApplicationConfig: testConfig(t),
		FnUpdate: func(f *Frame) error {
			f.MoveTo(5, 0)
			f.Label("one", white)
			first = f.Cursor().Y
			f.Label("two", white)
			second = f.Cursor().Y

			f.SetFont(metadata.FontHandle(99))
			_, unknown = f.Label("lost", white)
			return nil
		},
	}
	e := newTestEngine(t, g)

	report, err := e.Frame()
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.FrameNumber)
	assert.Equal(t, 2, report.Drawn+report.Pending, "the unknown font label is dropped")
	assert.Greater(t, first, 0)
	assert.Equal(t, 2*first, second)
	assert.False(t, unknown)
}

func TestEngine_RunStopsOnQuitAndFrameLimit(t *testing.T) {
	g := &Game{
		ApplicationConfig: testConfig(t),
		FnUpdate: func(f *Frame) error {
			if f.Number == 3 {
				f.Quit()
			}
			return nil
		},
	}
	e := newTestEngine(t, g)

	require.NoError(t, e.Run(context.Background(), 0))
	assert.EqualValues(t, 3, e.LastReport().FrameNumber)
	assert.Equal(t, EngineStageInitialized, e.Stage())

	g.FnUpdate = nil
	require.NoError(t, e.Run(context.Background(), 2))
	assert.EqualValues(t, 5, e.LastReport().FrameNumber)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx, 0))
	assert.EqualValues(t, 5, e.LastReport().FrameNumber)
}

func TestEngine_ResizeSuspends(t *testing.T) {
	var sizes [][2]uint32
	g := &Game{
		ApplicationConfig: testConfig(t),
		FnOnResize: func(w, h uint32) error {
			sizes = append(sizes, [2]uint32{w, h})
			return nil
		},
	}
	e := newTestEngine(t, g)

	e.Resize(0, 0)
	report, err := e.Frame()
	require.NoError(t, err)
	assert.Zero(t, report.FrameNumber, "no frame while suspended")

	e.Resize(200, 80)
	report, err = e.Frame()
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.FrameNumber)

	e.Resize(320, 240)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, [2]uint32{320, 240}, [2]uint32{w, h})
	assert.Equal(t, 320, e.Framebuffer().Bounds().Dx())
	assert.Equal(t, [][2]uint32{{200, 80}, {200, 80}, {320, 240}}, sizes)
}

func TestEngine_CatalogEventsAndMetrics(t *testing.T) {
	config := testConfig(t)
	config.MetricsPrefix = "typeset_test"
	g := &Game{ApplicationConfig: config}
	e := newTestEngine(t, g)
	require.NotNil(t, e.Registry())

	var added []string
	e.Events().Register(core.EVENT_CODE_FONT_ADDED, nil, func(sender, listener interface{}, data core.EventContext) bool {
		added = append(added, data.Data.C[0])
		return false
	})
	require.NoError(t, os.WriteFile(filepath.Join(config.FontDir, "Late.ttf"), goregular.TTF, 0o644))
	frameUntil(t, e, func(metadata.FrameReport) bool {
		for _, name := range added {
			if name == "Late" {
				return true
			}
		}
		return false
	})

	handle, err := e.LoadFont("late")
	require.NoError(t, err)
	assert.NotEqual(t, metadata.InvalidFontHandle, handle)

	count, err := testutil.GatherAndCount(e.Registry(), "typeset_test_submitted_total")
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestEngine_Lifecycle(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	bad := DefaultApplicationConfig()
	bad.StartWidth = 0
	_, err = New(&Game{ApplicationConfig: &bad})
	assert.Error(t, err)

	config := testConfig(t)
	config.Fonts = []systems.FontConfig{{Font: "Missing"}}
	broken, err := New(&Game{ApplicationConfig: config})
	require.NoError(t, err)
	t.Cleanup(func() { _ = broken.Shutdown() })
	_, err = broken.Frame()
	assert.ErrorIs(t, err, ErrEngineNotInitialized)
	assert.ErrorIs(t, broken.Initialize(), core.ErrFontNotFound)

	shutdowns := 0
	e, err := New(&Game{
		ApplicationConfig: testConfig(t),
		FnShutdown: func() error {
			shutdowns++
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Error(t, e.Initialize())
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
	assert.Equal(t, 1, shutdowns)
	assert.ErrorIs(t, e.Run(context.Background(), 1), ErrEngineNotInitialized)
}
