package systems

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/spaghettifunk/typeset/engine/assets/loaders"
	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

func writeTestFont(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "GoRegular.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))
	return path
}

func newTestTextSystem(t *testing.T, mutate ...func(*TextSystemConfig)) *TextSystem {
	t.Helper()
	config := DefaultTextSystemConfig()
	for _, m := range mutate {
		m(&config)
	}
	jobs, err := NewTextJobSystem(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Shutdown() })

	ts, err := NewTextSystem(config, jobs)
	require.NoError(t, err)
	return ts
}

func loadReadyFont(t *testing.T, ts *TextSystem) metadata.FontHandle {
	t.Helper()
	handle, err := ts.LoadFont(writeTestFont(t))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ts.DrainCompletions()
		return ts.FontReady(handle)
	}, 2*time.Second, time.Millisecond)
	return handle
}

func waitCached(t *testing.T, ts *TextSystem, text string, size uint32, font metadata.FontHandle) *metadata.CachedText {
	t.Helper()
	var cached *metadata.CachedText
	require.Eventually(t, func() bool {
		ts.DrainCompletions()
		var ok bool
		cached, ok = ts.LookupCached(text, size, font)
		return ok
	}, 2*time.Second, time.Millisecond)
	return cached
}

// renderInvocations counts the render callbacks that ran. Every outcome a
// drain has seen is included.
func renderInvocations(ts *TextSystem) int64 {
	stats, _ := ts.jobs.KindStats(ts.renderTextKind)
	return stats.Processed
}

func renderSubmissions(ts *TextSystem) int64 {
	stats, _ := ts.jobs.KindStats(ts.renderTextKind)
	return stats.Submitted
}

func TestTextSystemConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultTextSystemConfig().Validate())

	config := DefaultTextSystemConfig()
	config.Workers = 0
	config.LineHeightFactor = 0
	config.SubPixelStepsX = 0
	err := config.Validate()
	assert.ErrorIs(t, err, ErrNoWorkers)
	assert.ErrorContains(t, err, "line height")
	assert.ErrorContains(t, err, "sub pixel")

	jobs, err := NewTextJobSystem(DefaultTextSystemConfig())
	require.NoError(t, err)
	defer jobs.Shutdown()
	_, err = NewTextSystem(config, jobs)
	assert.Error(t, err)
	_, err = NewTextSystem(DefaultTextSystemConfig(), nil)
	assert.Error(t, err)
}

func TestTextSystem_LoadFontAndMeasure(t *testing.T) {
	ts := newTestTextSystem(t)

	handle, err := ts.LoadFont(writeTestFont(t))
	require.NoError(t, err)
	assert.Equal(t, metadata.FontHandle(1), handle)

	// measurement does not wait for the worker side
	size, ok := ts.MeasureText("Hi", handle, 32)
	require.True(t, ok)
	assert.Greater(t, size.Width, float32(0))
	assert.InDelta(t, 35.2, size.Height, 1e-4)

	for i := 0; i < 5; i++ {
		again, ok := ts.MeasureText("Hi", handle, 32)
		require.True(t, ok)
		assert.Equal(t, size, again)
	}

	measure := ts.Measurer(handle)
	viaClosure, ok := measure("Hi", 32)
	require.True(t, ok)
	assert.Equal(t, size, viaClosure)

	record, ok := ts.Font(handle)
	require.True(t, ok)
	assert.Equal(t, "Go", record.Attributes.Family)

	_, ok = ts.MeasureText("Hi", handle+1, 32)
	assert.False(t, ok, "unknown fonts measure as absent")
}

func TestTextSystem_LoadFontFailureIssuesNoHandle(t *testing.T) {
	ts := newTestTextSystem(t)

	handle, err := ts.LoadFont(filepath.Join(t.TempDir(), "missing.ttf"))
	assert.ErrorIs(t, err, core.ErrFontNotFound)
	assert.Equal(t, metadata.InvalidFontHandle, handle)

	_, err = ts.LoadFont(filepath.Join(t.TempDir(), "font.woff2"))
	assert.ErrorIs(t, err, core.ErrFontNotFound)
	assert.ErrorIs(t, err, core.ErrUnsupportedFontFormat)

	handle, err = ts.LoadFont(writeTestFont(t))
	require.NoError(t, err)
	assert.Equal(t, metadata.FontHandle(1), handle, "failed loads do not consume handles")

	second, err := ts.LoadFont(writeTestFont(t))
	require.NoError(t, err)
	assert.Equal(t, metadata.FontHandle(2), second)

	loads, _ := ts.jobs.KindStats(ts.loadFontKind)
	assert.EqualValues(t, 2, loads.Submitted)
}

func TestTextSystem_RenderRoundTrip(t *testing.T) {
	ts := newTestTextSystem(t)
	font := loadReadyFont(t, ts)

	cached, ok := ts.RequestRender("Hi", 32, font)
	assert.False(t, ok)
	assert.Nil(t, cached)

	cached = waitCached(t, ts, "Hi", 32, font)
	assert.Equal(t, uint64(1), cached.ID)
	assert.Equal(t, uint32(36), cached.Height)
	assert.Greater(t, cached.Width, uint32(0))
	assert.Equal(t, cached.Width*4, cached.Stride)
	assert.Len(t, cached.Pix, int(cached.Stride*cached.Height))
	assert.Equal(t, uint32(1), cached.SubPixelStepX)

	size, _ := ts.MeasureText("Hi", font, 32)
	assert.InDelta(t, size.Width, float32(cached.Width), 1)

	stats := ts.Stats()
	assert.Equal(t, 1, stats.Cached)
	assert.Zero(t, stats.InFlight)
	assert.EqualValues(t, 1, stats.Completed)
}

func TestTextSystem_DeduplicatesInFlightRenders(t *testing.T) {
	ts := newTestTextSystem(t)
	font := loadReadyFont(t, ts)

	// three requests for the same text before anything is drained
	for i := 0; i < 3; i++ {
		cached, ok := ts.RequestRender("Hello", 24, font)
		assert.False(t, ok)
		assert.Nil(t, cached)
	}
	assert.EqualValues(t, 1, renderSubmissions(ts))
	assert.Equal(t, 1, ts.Stats().InFlight)

	first := waitCached(t, ts, "Hello", 24, font)
	for i := 0; i < 3; i++ {
		cached, ok := ts.LookupCached("Hello", 24, font)
		require.True(t, ok)
		assert.Equal(t, first.ID, cached.ID)
	}
	assert.EqualValues(t, 1, renderInvocations(ts))
}

func TestTextSystem_CachedTextIsStable(t *testing.T) {
	ts := newTestTextSystem(t)
	font := loadReadyFont(t, ts)

	ts.RequestRender("Stable", 16, font)
	first := waitCached(t, ts, "Stable", 16, font)
	pixels := bytes.Clone(first.Pix)

	for i := 0; i < 10; i++ {
		cached, ok := ts.RequestRender("Stable", 16, font)
		require.True(t, ok)
		assert.Same(t, first, cached)
		assert.Equal(t, pixels, cached.Pix)
		ts.DrainCompletions()
	}
	assert.EqualValues(t, 1, renderInvocations(ts))
	assert.EqualValues(t, 10, ts.Stats().Hits)
}

func TestTextSystem_DistinctKeysGetIncreasingIDs(t *testing.T) {
	ts := newTestTextSystem(t)
	font := loadReadyFont(t, ts)

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		ts.RequestRender(text, 20, font)
	}
	// the same text at another size is another key
	ts.RequestRender("one", 21, font)
	assert.EqualValues(t, 4, renderSubmissions(ts))

	seen := map[uint64]bool{}
	for _, text := range texts {
		cached := waitCached(t, ts, text, 20, font)
		assert.False(t, seen[cached.ID])
		seen[cached.ID] = true
	}
	cached := waitCached(t, ts, "one", 21, font)
	assert.False(t, seen[cached.ID])
	seen[cached.ID] = true

	for id := uint64(1); id <= 4; id++ {
		assert.True(t, seen[id], "id %d not assigned", id)
	}
	assert.EqualValues(t, 4, renderInvocations(ts))
}

func TestTextSystem_UnknownFontSubmitsNothing(t *testing.T) {
	ts := newTestTextSystem(t)

	cached, ok := ts.RequestRender("nobody", 12, 7)
	assert.False(t, ok)
	assert.Nil(t, cached)
	assert.Zero(t, renderSubmissions(ts))
	assert.Zero(t, ts.Stats().InFlight)

	_, ok = ts.LookupCached("nobody", 12, 7)
	assert.False(t, ok)
}

func TestTextSystem_RenderBeforeFontReady(t *testing.T) {
	ts := newTestTextSystem(t, func(c *TextSystemConfig) {
		c.MaxRetries = 0
	})
	font, err := ts.LoadFont(writeTestFont(t))
	require.NoError(t, err)

	// requested right away, the render may reach a worker before the font
	ts.RequestRender("Early", 18, font)
	cached := waitCached(t, ts, "Early", 18, font)
	assert.NotNil(t, cached)
	assert.True(t, ts.FontReady(font))
	assert.NoError(t, ts.RenderError(ts.TextKey("Early", 18, font)))
}

func forgetWorkerFont(ts *TextSystem, font metadata.FontHandle) {
	ts.workerState.With(func(s *textWorkerState) {
		delete(s.fonts, font)
	})
}

func TestTextSystem_GivesUpAfterMaxRetries(t *testing.T) {
	ts := newTestTextSystem(t, func(c *TextSystemConfig) {
		c.MaxRetries = 2
	})
	font := loadReadyFont(t, ts)
	forgetWorkerFont(ts, font)

	key := ts.TextKey("Broken", 14, font)
	ts.RequestRender("Broken", 14, font)
	require.Eventually(t, func() bool {
		ts.DrainCompletions()
		return ts.RenderError(key) != nil
	}, 2*time.Second, time.Millisecond)

	err := ts.RenderError(key)
	assert.ErrorIs(t, err, core.ErrGenerationFailed)
	assert.ErrorIs(t, err, core.ErrFontNotLoaded)
	assert.EqualValues(t, 3, renderInvocations(ts), "one attempt plus two retries")

	stats := ts.Stats()
	assert.Zero(t, stats.InFlight)
	assert.Equal(t, 1, stats.Failed)
	assert.EqualValues(t, 2, stats.Retries)

	// failed texts are not submitted again
	_, ok := ts.RequestRender("Broken", 14, font)
	assert.False(t, ok)
	ts.DrainCompletions()
	assert.EqualValues(t, 3, renderInvocations(ts))
}

func TestTextSystem_RetriesForeverWhenUnbounded(t *testing.T) {
	ts := newTestTextSystem(t, func(c *TextSystemConfig) {
		c.MaxRetries = -1
	})
	font := loadReadyFont(t, ts)
	forgetWorkerFont(ts, font)

	ts.RequestRender("Persistent", 14, font)
	require.Eventually(t, func() bool {
		ts.DrainCompletions()
		return renderInvocations(ts) > 5
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, ts.Stats().InFlight)

	// restore the font; the next retry succeeds
	face := ts.fonts[font]
	ts.workerState.With(func(s *textWorkerState) {
		s.fonts[font] = &loadedFace{record: face.record, face: face.face}
	})
	cached := waitCached(t, ts, "Persistent", 14, font)
	assert.NotNil(t, cached)
	assert.NoError(t, ts.RenderError(ts.TextKey("Persistent", 14, font)))
}

func TestTextSystem_SoftLimitEvicts(t *testing.T) {
	ts := newTestTextSystem(t, func(c *TextSystemConfig) {
		c.CacheSoftLimit = 4
	})
	font := loadReadyFont(t, ts)

	texts := []string{"a", "b", "c", "d", "e"}
	for _, text := range texts {
		ts.RequestRender(text, 12, font)
		waitCached(t, ts, text, 12, font)
	}

	stats := ts.Stats()
	assert.LessOrEqual(t, stats.Cached, 4)
	assert.Positive(t, stats.Evicted)

	// "a" was the least recently used text and renders again on demand
	_, ok := ts.LookupCached("a", 12, font)
	require.False(t, ok)
	before := renderInvocations(ts)
	ts.RequestRender("a", 12, font)
	waitCached(t, ts, "a", 12, font)
	assert.Equal(t, before+1, renderInvocations(ts))
}

func TestTextSystem_LogsDivergentFonts(t *testing.T) {
	ts := newTestTextSystem(t)
	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })

	font, err := ts.LoadFont(writeTestFont(t))
	require.NoError(t, err)
	ts.fonts[font].record.Attributes.Family = "Not Go"

	require.Eventually(t, func() bool {
		ts.DrainCompletions()
		return ts.FontReady(font)
	}, 2*time.Second, time.Millisecond)
	assert.Contains(t, logs.String(), "diverged")
}

func TestTextSystem_ClampsOversizeText(t *testing.T) {
	ts := newTestTextSystem(t)
	font := loadReadyFont(t, ts)

	largest, ok := ts.MeasureText("i", font, loaders.MaxFontSize)
	require.True(t, ok)
	assert.InDelta(t, float32(loaders.MaxFontSize)*1.1, largest.Height, 1e-1)

	for _, size := range []uint32{loaders.MaxFontSize + 1, 2 * loaders.MaxFontSize, 1 << 20} {
		measured, ok := ts.MeasureText("i", font, size)
		require.True(t, ok)
		assert.Equal(t, largest, measured, "size %d", size)
		assert.Equal(t, loaders.MaxFontSize, ts.TextKey("i", size, font).Size)
	}
	assert.Equal(t, uint32(1), ts.TextKey("i", 0, font).Size)

	// oversize requests share the text rendered at the largest size
	ts.RequestRender("i", 2*loaders.MaxFontSize, font)
	ts.RequestRender("i", loaders.MaxFontSize, font)
	assert.EqualValues(t, 1, renderSubmissions(ts))

	cached := waitCached(t, ts, "i", 1<<20, font)
	assert.InDelta(t, largest.Height, float32(cached.Height), 1)
	same, ok := ts.LookupCached("i", loaders.MaxFontSize, font)
	require.True(t, ok)
	assert.Same(t, cached, same)
}

func TestTextSystem_WorkerFontLoadFailure(t *testing.T) {
	ts := newTestTextSystem(t, func(c *TextSystemConfig) {
		c.Workers = 1
		c.QueueSize = 8
		c.MaxRetries = 2
	})

	// hold the only worker so the font load waits behind it
	started, release := make(chan struct{}), make(chan struct{})
	gate, err := RegisterJobKind(ts.jobs, "gate", func(_ metadata.TextJob, _ *struct{}) (metadata.TextJobResult, error) {
		close(started)
		<-release
		return nil, nil
	}, NewSharedState(struct{}{}))
	require.NoError(t, err)
	ts.jobs.Submit(gate, nil)
	<-started

	path := writeTestFont(t)
	font, err := ts.LoadFont(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	key := ts.TextKey("Lost", 14, font)
	ts.RequestRender("Lost", 14, font)
	close(release)

	require.Eventually(t, func() bool {
		ts.DrainCompletions()
		return ts.RenderError(key) != nil
	}, 2*time.Second, time.Millisecond)

	assert.False(t, ts.FontReady(font))
	assert.ErrorIs(t, ts.RenderError(key), core.ErrFontNotLoaded)
	// the render ahead of the failed load is free, then three counted attempts
	assert.EqualValues(t, 4, renderInvocations(ts))

	stats := ts.Stats()
	assert.Zero(t, stats.InFlight)
	assert.Equal(t, 1, stats.Failed)
	assert.EqualValues(t, 3, stats.Retries)

	// the text can still be measured with the frame side font
	_, ok := ts.MeasureText("Lost", font, 14)
	assert.True(t, ok)
}

func TestTextJobs_RejectWrongPayloads(t *testing.T) {
	state := newTextWorkerState()

	_, err := loadFontJob(&metadata.RenderTextJob{}, &state)
	assert.ErrorIs(t, err, core.ErrUnexpectedPayload)

	_, err = renderTextJob(&metadata.LoadFontJob{}, &state)
	assert.ErrorIs(t, err, core.ErrUnexpectedPayload)

	_, err = renderTextJob(nil, &state)
	assert.ErrorIs(t, err, core.ErrUnexpectedPayload)

	_, err = loadFontJob(&metadata.LoadFontJob{Handle: 1, Path: "missing.ttf"}, &state)
	assert.ErrorIs(t, err, core.ErrFontNotFound)
	assert.Empty(t, state.fonts)
}
