package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spaghettifunk/typeset/engine/assets"
	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
	"github.com/spaghettifunk/typeset/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

var ErrEngineNotInitialized = errors.New("engine not initialized")

/**
 * @brief Headless frame loop. Every frame drains finished texts, lets the
 * game declare its labels and presents the packet on the software renderer.
 * All methods but Shutdown belong to the goroutine running the frames.
 */
type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	config        ApplicationConfig
	isRunning     bool
	isSuspended   bool
	catalog       *assets.FontCatalog
	systemManager *systems.SystemManager
	renderer      *renderer.Renderer
	events        *core.EventSystem
	registry      *prometheus.Registry
	width         uint32
	height        uint32
	clock         *core.Clock
	metrics       *core.FrameMetrics
	lastTime      float64
	frameNumber   uint64
	lastReport    metadata.FrameReport

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("game and application config are required")
	}
	config := *g.ApplicationConfig
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	level, _ := core.ParseLogLevel(config.LogLevel)
	core.SetLogLevel(level)

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       config,
		events:       core.NewEventSystem(),
		width:        config.StartWidth,
		height:       config.StartHeight,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}

	var lookup systems.FontLookup
	if config.FontDir != "" {
		catalog, err := assets.NewFontCatalog()
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		e.catalog = catalog
		lookup = catalog
	}

	var opts []systems.JobSystemOption
	if config.MetricsPrefix != "" {
		e.registry = prometheus.NewRegistry()
		opts = append(opts, systems.WithJobMetrics(e.registry, config.MetricsPrefix))
	}

	sm, err := systems.NewSystemManager(config.Text, lookup, opts...)
	if err != nil {
		core.LogError(err.Error())
		_ = e.closeCatalog()
		return nil, err
	}
	e.systemManager = sm
	g.SystemManager = sm

	r, err := renderer.New(renderer.Software, sm.TextSystem())
	if err != nil {
		_ = sm.Shutdown()
		_ = e.closeCatalog()
		return nil, err
	}
	e.renderer = r

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine cannot initialize from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, onQuit)
	e.events.Register(core.EVENT_CODE_RESIZED, e, onResized)
	e.events.Register(core.EVENT_CODE_FONT_ADDED, e, onFontChanged)
	e.events.Register(core.EVENT_CODE_FONT_REMOVED, e, onFontChanged)

	if e.catalog != nil {
		if err := e.catalog.Initialize(e.config.FontDir); err != nil {
			return err
		}
	}

	if err := e.renderer.Initialize(e.config.Name, e.width, e.height); err != nil {
		return err
	}

	if err := e.systemManager.FontSystem().LoadConfigured(e.config.Fonts); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	e.currentStage = EngineStageInitialized
	return nil
}

// Frame runs one frame and returns what the renderer drew.
func (e *Engine) Frame() (metadata.FrameReport, error) {
	if e.currentStage != EngineStageInitialized && e.currentStage != EngineStageRunning {
		return metadata.FrameReport{}, ErrEngineNotInitialized
	}

	e.pumpCatalog()
	if e.isSuspended {
		return metadata.FrameReport{FrameNumber: e.frameNumber}, nil
	}

	frameStartTime := time.Now()
	e.clock.Update()
	var currentTime float64 = e.clock.Elapsed()
	var delta float64 = (currentTime - e.lastTime)

	e.systemManager.TextSystem().DrainCompletions()

	e.frameNumber++
	packet := &metadata.RenderPacket{
		DeltaTime:   delta,
		FrameNumber: e.frameNumber,
	}

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(newFrame(e, packet)); err != nil {
			core.LogError("Game update failed: %s", err)
			return metadata.FrameReport{FrameNumber: e.frameNumber}, err
		}
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(packet, delta); err != nil {
			core.LogError("Game render failed: %s", err)
			return metadata.FrameReport{FrameNumber: e.frameNumber}, err
		}
	}

	report, err := e.renderer.DrawFrame(packet)
	if err != nil {
		return report, err
	}
	e.lastReport = report

	e.metrics.Update(time.Since(frameStartTime).Seconds())
	e.lastTime = currentTime
	return report, nil
}

/**
 * @brief Runs frames until ctx is done, the game quits or maxFrames frames
 * ran. maxFrames 0 means no limit. Frames are paced to the configured
 * target rate.
 */
func (e *Engine) Run(ctx context.Context, maxFrames uint64) error {
	if e.currentStage != EngineStageInitialized {
		return ErrEngineNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true
	defer func() {
		e.isRunning = false
		if e.currentStage == EngineStageRunning {
			e.currentStage = EngineStageInitialized
		}
	}()

	var targetFrameSeconds float64 = 0
	if e.config.TargetFPS > 0 {
		targetFrameSeconds = 1.0 / float64(e.config.TargetFPS)
	}

	var frames uint64 = 0
	for e.isRunning {
		if maxFrames > 0 && frames >= maxFrames {
			break
		}
		if err := ctx.Err(); err != nil {
			core.LogInfo("context done, leaving the frame loop")
			return nil
		}

		frameStart := time.Now()
		if _, err := e.Frame(); err != nil {
			return err
		}
		frames++

		remaining := time.Duration((targetFrameSeconds - time.Since(frameStart).Seconds()) * float64(time.Second))
		if remaining > 0 && e.isRunning {
			select {
			case <-ctx.Done():
			case <-time.After(remaining):
			}
		}
	}
	return nil
}

// LoadFont loads a font by catalog name or path.
func (e *Engine) LoadFont(nameOrPath string) (metadata.FontHandle, error) {
	return e.systemManager.FontSystem().Load(nameOrPath)
}

// Shutdown stops the engine. Only the first call has an effect.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		var errs []error
		if e.gameInstance.FnShutdown != nil {
			errs = append(errs, e.gameInstance.FnShutdown())
		}
		errs = append(errs, e.renderer.Shutdown())
		errs = append(errs, e.systemManager.Shutdown())
		errs = append(errs, e.closeCatalog())
		e.events.Shutdown()
		e.shutdownErr = errors.Join(errs...)
		e.currentStage = EngineStageUninitialized
	})
	return e.shutdownErr
}

func (e *Engine) closeCatalog() error {
	if e.catalog == nil {
		return nil
	}
	return e.catalog.Close()
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

// Catalog is nil when no font directory is configured.
func (e *Engine) Catalog() *assets.FontCatalog {
	return e.catalog
}

// Registry is nil when metrics are disabled.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Engine) FrameMetrics() *core.FrameMetrics {
	return e.metrics
}

func (e *Engine) LastReport() metadata.FrameReport {
	return e.lastReport
}

func (e *Engine) Framebuffer() *image.RGBA {
	return e.renderer.Framebuffer()
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

// Resize fires a resize event. A zero size suspends the frames.
func (e *Engine) Resize(width, height uint32) {
	var data core.EventContext
	data.Data.U32 = [2]uint32{width, height}
	e.events.Fire(core.EVENT_CODE_RESIZED, e, data)
}

// pumpCatalog turns catalog changes into engine events on the frame goroutine.
func (e *Engine) pumpCatalog() {
	if e.catalog == nil {
		return
	}
	for {
		select {
		case ev, ok := <-e.catalog.Events():
			if !ok {
				return
			}
			var data core.EventContext
			data.Data.C = [2]string{ev.Font.Name, ev.Font.Path}
			code := core.EVENT_CODE_FONT_ADDED
			if ev.Op == assets.FONT_EVENT_REMOVED {
				code = core.EVENT_CODE_FONT_REMOVED
			}
			e.events.Fire(code, e.catalog, data)
		default:
			return
		}
	}
}

func onQuit(sender interface{}, listener interface{}, data core.EventContext) bool {
	e := listener.(*Engine)
	core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
	e.isRunning = false
	return true
}

func onResized(sender interface{}, listener interface{}, data core.EventContext) bool {
	e := listener.(*Engine)
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height && !e.isSuspended {
		return true
	}
	if width == 0 || height == 0 {
		core.LogInfo("Framebuffer minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Framebuffer restored, resuming application.")
		e.isSuspended = false
	}
	e.width = width
	e.height = height
	core.LogDebug("Framebuffer resize: %d, %d", width, height)
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.renderer.OnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return true
}

func onFontChanged(sender interface{}, listener interface{}, data core.EventContext) bool {
	name, path := data.Data.C[0], data.Data.C[1]
	if data.Code == core.EVENT_CODE_FONT_ADDED {
		core.LogInfo("font '%s' available at '%s'", name, path)
	} else {
		core.LogInfo("font '%s' removed", name)
	}
	return false
}
