package systems

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/spaghettifunk/typeset/engine/assets/loaders"
	"github.com/spaghettifunk/typeset/engine/containers"
	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/math"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

/** @brief The text system configuration. */
type TextSystemConfig struct {
	/** @brief Number of job system workers. */
	Workers int `toml:"workers" yaml:"workers"`
	/** @brief Job queue capacity. 0 sizes the queue to the worker count. */
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
	/** @brief Line height as a multiple of the font size. */
	LineHeightFactor float32 `toml:"line_height_factor" yaml:"line_height_factor"`
	SubPixelStepsX   uint32  `toml:"sub_pixel_steps_x" yaml:"sub_pixel_steps_x"`
	SubPixelStepsY   uint32  `toml:"sub_pixel_steps_y" yaml:"sub_pixel_steps_y"`
	/**
	 * @brief How many times a failed render is resubmitted before the text is
	 * marked as failed. A negative value retries forever.
	 */
	MaxRetries int `toml:"max_retries" yaml:"max_retries"`
	/** @brief Soft limit of cached texts. 0 keeps every text forever. */
	CacheSoftLimit int `toml:"cache_soft_limit" yaml:"cache_soft_limit"`
}

func DefaultTextSystemConfig() TextSystemConfig {
	return TextSystemConfig{
		Workers:          2,
		QueueSize:        0,
		LineHeightFactor: 1.1,
		SubPixelStepsX:   1,
		SubPixelStepsY:   1,
		MaxRetries:       3,
		CacheSoftLimit:   0,
	}
}

func (c TextSystemConfig) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, ErrNoWorkers)
	}
	if c.QueueSize < 0 {
		errs = append(errs, ErrNegativeChannelSize)
	}
	if c.LineHeightFactor <= 0 {
		errs = append(errs, fmt.Errorf("line height factor must be positive, got %v", c.LineHeightFactor))
	}
	if c.SubPixelStepsX == 0 || c.SubPixelStepsY == 0 {
		errs = append(errs, errors.New("sub pixel steps must be at least 1"))
	}
	if c.CacheSoftLimit < 0 {
		errs = append(errs, fmt.Errorf("cache soft limit must not be negative, got %d", c.CacheSoftLimit))
	}
	return errors.Join(errs...)
}

// MeasureTextFunc measures text with a font bound at creation time.
type MeasureTextFunc func(text string, size uint32) (math.Extent2D, bool)

type textFont struct {
	record metadata.FontRecord
	face   loaders.FontFace
}

type pendingFontLoad struct {
	handle metadata.FontHandle
	result <-chan metadata.JobOutcome[metadata.TextJobResult]
}

// inFlightText is a render submitted but not yet resolved. A nil result
// means the render waits to be resubmitted.
type inFlightText struct {
	key        metadata.TextKey
	lineHeight float32
	result     <-chan metadata.JobOutcome[metadata.TextJobResult]
	failures   int

	// the font was still loading when the render was submitted
	racedFontLoad bool
}

/** @brief The text system counters. */
type TextSystemStats struct {
	Fonts      int   `json:"fonts"`
	ReadyFonts int   `json:"ready_fonts"`
	Cached     int   `json:"cached"`
	InFlight   int   `json:"in_flight"`
	Failed     int   `json:"failed"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Retries    int64 `json:"retries"`
	Evicted    int64 `json:"evicted"`
}

/**
 * @brief Measures text synchronously and renders it asynchronously on the
 * job system, keeping every rendered text in a cache.
 *
 * All methods must be called from the same goroutine (the frame loop);
 * none of them waits for a render to finish.
 */
type TextSystem struct {
	config TextSystemConfig
	jobs   *TextJobSystem

	workerState    *SharedState[textWorkerState]
	loadFontKind   metadata.JobKind
	renderTextKind metadata.JobKind

	// fonts used for measurement, never seen by workers
	fonts     map[metadata.FontHandle]*textFont
	ready     map[metadata.FontHandle]bool
	fontLoads []*pendingFontLoad
	fontIDs   core.Identifier

	cache    *containers.Cache[metadata.TextKey, *metadata.CachedText]
	textIDs  core.Identifier
	inFlight map[metadata.TextKey]*inFlightText
	// in-flight renders in submission order
	order  []*inFlightText
	failed map[metadata.TextKey]error

	failureLog rate.Sometimes

	hits      int64
	misses    int64
	submitted int64
	completed int64
	retries   int64
}

// NewTextSystem registers the text job kinds on jobs. The text system does
// not own jobs; shut it down separately.
func NewTextSystem(config TextSystemConfig, jobs *TextJobSystem) (*TextSystem, error) {
	if jobs == nil {
		return nil, errors.New("text system requires a job system")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid text system config: %w", err)
	}

	ts := &TextSystem{
		config:      config,
		jobs:        jobs,
		workerState: NewSharedState(newTextWorkerState()),
		fonts:       make(map[metadata.FontHandle]*textFont),
		ready:       make(map[metadata.FontHandle]bool),
		cache:       containers.NewCache[metadata.TextKey, *metadata.CachedText](config.CacheSoftLimit),
		inFlight:    make(map[metadata.TextKey]*inFlightText),
		failed:      make(map[metadata.TextKey]error),
		failureLog:  rate.Sometimes{First: 3, Interval: time.Second},
	}
	ts.cache.OnEvict(func(key metadata.TextKey, t *metadata.CachedText) {
		core.LogDebug("text %d ('%s' at %d) evicted", t.ID, key.Text, key.Size)
	})

	var err error
	// both kinds run against the same worker state
	if ts.loadFontKind, err = RegisterJobKind(jobs, "load_font", loadFontJob, ts.workerState); err != nil {
		return nil, err
	}
	if ts.renderTextKind, err = RegisterJobKind(jobs, "render_text", renderTextJob, ts.workerState); err != nil {
		return nil, err
	}
	return ts, nil
}

// FontSize is the size text requested at size is measured and rendered at.
// Sizes outside 1..loaders.MaxFontSize are clamped.
func FontSize(size uint32) uint32 {
	return math.Clamp(size, 1, loaders.MaxFontSize)
}

// lineHeight expects a size already passed through FontSize.
func (ts *TextSystem) lineHeight(size uint32) float32 {
	return float32(size) * ts.config.LineHeightFactor
}

// TextKey builds the cache key of text rendered at size with font. The key
// carries the clamped size, so oversize requests share the largest text.
func (ts *TextSystem) TextKey(text string, size uint32, font metadata.FontHandle) metadata.TextKey {
	return metadata.TextKey{
		Font:           font,
		Text:           text,
		Size:           FontSize(size),
		SubPixelStepsX: ts.config.SubPixelStepsX,
		SubPixelStepsY: ts.config.SubPixelStepsY,
	}
}

/**
 * @brief Loads the font at path for measurement right away and queues the
 * same load on the job system for rendering. No handle is issued when the
 * font cannot be parsed.
 */
func (ts *TextSystem) LoadFont(path string) (metadata.FontHandle, error) {
	// the handle is fixed before either side registers the font
	handle := metadata.FontHandle(ts.fontIDs.Peek())

	face, err := loaders.LoadFontFace(path)
	if err != nil {
		return metadata.InvalidFontHandle, fmt.Errorf("%w: '%s': %w", core.ErrFontNotFound, path, err)
	}
	ts.fontIDs.Acquire()

	record := metadata.FontRecord{Handle: handle, Path: path, Attributes: face.Attributes()}
	ts.fonts[handle] = &textFont{record: record, face: face}

	result := ts.jobs.Submit(ts.loadFontKind, &metadata.LoadFontJob{Handle: handle, Path: path})
	ts.fontLoads = append(ts.fontLoads, &pendingFontLoad{handle: handle, result: result})

	core.LogInfo("font %d loaded from '%s': %s", handle, path, record.Attributes)
	return handle, nil
}

// Font returns the record of a loaded font.
func (ts *TextSystem) Font(handle metadata.FontHandle) (metadata.FontRecord, bool) {
	f, ok := ts.fonts[handle]
	if !ok {
		return metadata.FontRecord{}, false
	}
	return f.record, true
}

// FontReady reports whether a font has reached the render side.
func (ts *TextSystem) FontReady(handle metadata.FontHandle) bool {
	return ts.ready[handle]
}

func (ts *TextSystem) fontLoadPending(handle metadata.FontHandle) bool {
	for _, load := range ts.fontLoads {
		if load.handle == handle {
			return true
		}
	}
	return false
}

/**
 * @brief Measures text with the given font. Returns false if the font is
 * unknown; that is not an error, the caller simply has nothing to lay out.
 */
func (ts *TextSystem) MeasureText(text string, font metadata.FontHandle, size uint32) (math.Extent2D, bool) {
	f, ok := ts.fonts[font]
	if !ok {
		return math.Extent2D{}, false
	}
	size = FontSize(size)
	return f.face.Measure(text, size, ts.lineHeight(size)), true
}

// Measurer returns a measurement function bound to font.
func (ts *TextSystem) Measurer(font metadata.FontHandle) MeasureTextFunc {
	return func(text string, size uint32) (math.Extent2D, bool) {
		return ts.MeasureText(text, font, size)
	}
}

/**
 * @brief Returns the rendered text if it is cached. Otherwise makes sure a
 * render is in flight and returns false; ask again after a later
 * DrainCompletions. Renders for unknown fonts or texts that failed for good
 * are never submitted.
 */
func (ts *TextSystem) RequestRender(text string, size uint32, font metadata.FontHandle) (*metadata.CachedText, bool) {
	key := ts.TextKey(text, size, font)
	if t, ok := ts.cache.Get(key); ok {
		ts.hits++
		return t, true
	}
	ts.misses++

	if _, ok := ts.inFlight[key]; ok {
		return nil, false
	}
	if _, ok := ts.failed[key]; ok {
		return nil, false
	}
	if _, ok := ts.fonts[font]; !ok {
		return nil, false
	}

	entry := &inFlightText{key: key, lineHeight: ts.lineHeight(key.Size)}
	entry.racedFontLoad = ts.fontLoadPending(font)
	entry.result = ts.jobs.Submit(ts.renderTextKind, ts.renderJob(entry))
	ts.submitted++
	ts.inFlight[key] = entry
	ts.order = append(ts.order, entry)
	return nil, false
}

func (ts *TextSystem) renderJob(entry *inFlightText) *metadata.RenderTextJob {
	return &metadata.RenderTextJob{Key: entry.key, LineHeight: entry.lineHeight}
}

// resubmit queues entry again without blocking. It reports false if the
// queue is full; the entry is then retried on a later drain.
func (ts *TextSystem) resubmit(entry *inFlightText) bool {
	result, ok := ts.jobs.TrySubmit(ts.renderTextKind, ts.renderJob(entry))
	if !ok {
		return false
	}
	entry.result = result
	entry.racedFontLoad = ts.fontLoadPending(entry.key.Font)
	ts.submitted++
	ts.retries++
	return true
}

// LookupCached returns the rendered text if it is cached, without ever
// submitting a render.
func (ts *TextSystem) LookupCached(text string, size uint32, font metadata.FontHandle) (*metadata.CachedText, bool) {
	return ts.cache.Get(ts.TextKey(text, size, font))
}

// RenderError returns the error of a text that failed for good, or nil.
func (ts *TextSystem) RenderError(key metadata.TextKey) error {
	return ts.failed[key]
}

/**
 * @brief Collects every finished job without blocking. Rendered texts are
 * assigned an ID and moved into the cache; failed renders are resubmitted
 * until they run out of retries. Call once per frame, before any lookup.
 * Returns the number of texts that became available.
 */
func (ts *TextSystem) DrainCompletions() int {
	ts.drainFontLoads()

	completed := 0
	kept := ts.order[:0]
	for _, entry := range ts.order {
		if ts.drainText(entry) {
			delete(ts.inFlight, entry.key)
			completed++
			continue
		}
		if _, failed := ts.failed[entry.key]; failed {
			delete(ts.inFlight, entry.key)
			continue
		}
		kept = append(kept, entry)
	}
	for i := len(kept); i < len(ts.order); i++ {
		ts.order[i] = nil
	}
	ts.order = kept
	ts.completed += int64(completed)
	return completed
}

// drainText polls one entry and reports whether its text was cached.
func (ts *TextSystem) drainText(entry *inFlightText) bool {
	if entry.result == nil {
		// renders for fonts still loading wait for the load to finish
		if ts.fontLoadPending(entry.key.Font) || !ts.resubmit(entry) {
			return false
		}
	}

	var out metadata.JobOutcome[metadata.TextJobResult]
	select {
	case out = <-entry.result:
	default:
		return false
	}

	if out.OK() {
		t, ok := out.Value.(*metadata.CachedText)
		if ok && t != nil {
			t.ID = ts.textIDs.Acquire()
			ts.cache.Set(entry.key, t)
			return true
		}
		out.Err = unexpectedResult(out.Value)
	}
	ts.renderFailed(entry, out.Err)
	return false
}

func unexpectedResult(v metadata.TextJobResult) error {
	return fmt.Errorf("%w: render produced %T", core.ErrUnexpectedPayload, v)
}

func (ts *TextSystem) renderFailed(entry *inFlightText, err error) {
	entry.result = nil
	key := entry.key

	// the render overtook the font load; it does not count as an attempt
	if errors.Is(err, core.ErrFontNotLoaded) && entry.racedFontLoad {
		return
	}

	entry.failures++
	ts.failureLog.Do(func() {
		core.LogWarn("rendering '%s' at %d with font %d failed (attempt %d): %s", key.Text, key.Size, key.Font, entry.failures, err)
	})

	if ts.config.MaxRetries >= 0 && entry.failures > ts.config.MaxRetries {
		ts.failed[key] = err
		core.LogError("giving up on '%s' at %d with font %d after %d attempts: %s", key.Text, key.Size, key.Font, entry.failures, err)
		return
	}
	ts.resubmit(entry)
}

func (ts *TextSystem) drainFontLoads() {
	kept := ts.fontLoads[:0]
	for _, load := range ts.fontLoads {
		select {
		case out := <-load.result:
			ts.fontLoaded(load.handle, out)
		default:
			kept = append(kept, load)
		}
	}
	for i := len(kept); i < len(ts.fontLoads); i++ {
		ts.fontLoads[i] = nil
	}
	ts.fontLoads = kept
}

func (ts *TextSystem) fontLoaded(handle metadata.FontHandle, out metadata.JobOutcome[metadata.TextJobResult]) {
	if !out.OK() {
		core.LogError("font %d failed to load for rendering: %s", handle, out.Err)
		return
	}
	loaded, ok := out.Value.(*metadata.FontLoaded)
	if !ok || loaded == nil {
		core.LogError("font %d: %s", handle, unexpectedResult(out.Value))
		return
	}

	if f, ok := ts.fonts[handle]; ok && f.record.Attributes != loaded.Record.Attributes {
		core.LogError("font %d diverged: measuring with %s, rendering with %s", handle, f.record.Attributes, loaded.Record.Attributes)
	}
	ts.ready[handle] = true
	core.LogDebug("font %d ready for rendering", handle)
}

func (ts *TextSystem) Stats() TextSystemStats {
	return TextSystemStats{
		Fonts:      len(ts.fonts),
		ReadyFonts: len(ts.ready),
		Cached:     ts.cache.Len(),
		InFlight:   len(ts.inFlight),
		Failed:     len(ts.failed),
		Hits:       ts.hits,
		Misses:     ts.misses,
		Submitted:  ts.submitted,
		Completed:  ts.completed,
		Retries:    ts.retries,
		Evicted:    ts.cache.Evicted(),
	}
}
