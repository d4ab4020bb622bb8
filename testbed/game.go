package testbed

import (
	"fmt"
	"image/color"

	"github.com/spaghettifunk/typeset/engine"
	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

const banner = "The quick brown fox jumps over the lazy dog"

var (
	titleColor = color.RGBA{R: 0xf5, G: 0xc2, B: 0xe7, A: 0xff}
	textColor  = color.RGBA{R: 0xcd, G: 0xd6, B: 0xf4, A: 0xff}
	dimColor   = color.RGBA{R: 0x93, G: 0x99, B: 0xb2, A: 0xff}
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	elapsed float64
	frames  uint64
	// revealed characters of the banner
	typed int
	// seconds after which the game quits, 0 runs forever
	duration float64

	fps       float64
	fpsFrames int
	fpsTime   float64
}

// NewTestGame returns a demo that types out a banner one character at a
// time and shows the text system counters, refreshed once per second.
func NewTestGame(config engine.ApplicationConfig, duration float64) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &config,
			State:             &gameState{duration: duration},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	styles := g.SystemManager.FontSystem().Styles()
	if len(styles) == 0 {
		return fmt.Errorf("testbed needs at least one font")
	}
	core.LogDebug("testbed styles: %v", styles)
	return nil
}

func (g *TestGame) Update(frame *engine.Frame) error {
	s := g.state()
	s.elapsed += frame.DeltaTime
	s.frames = frame.Number

	s.fpsFrames++
	s.fpsTime += frame.DeltaTime
	if s.fpsTime >= 1.0 {
		s.fps = float64(s.fpsFrames) / s.fpsTime
		s.fpsFrames = 0
		s.fpsTime = 0
	}

	// ten characters per second
	s.typed = min(int(s.elapsed*10), len(banner))

	frame.MoveTo(16, 16)
	frame.SetFontStyle(metadata.TEXT_STYLE_BOLD)
	frame.SetFontSize(32)
	frame.Label("typeset testbed", titleColor)

	frame.SetFontStyle(metadata.TEXT_STYLE_DEFAULT)
	frame.SetFontSize(20)
	frame.Label(banner[:s.typed], textColor)

	stats := g.SystemManager.TextSystem().Stats()
	frame.SetFontStyle(metadata.TEXT_STYLE_LIGHT)
	frame.SetFontSize(14)
	frame.Label(fmt.Sprintf("%.0f fps", s.fps), dimColor)
	frame.Label(fmt.Sprintf("cached %d  in flight %d  failed %d", stats.Cached, stats.InFlight, stats.Failed), dimColor)

	if s.duration > 0 && s.elapsed >= s.duration {
		frame.Quit()
	}
	return nil
}

func (g *TestGame) Render(packet *metadata.RenderPacket, deltaTime float64) error {
	if packet.FrameNumber%600 == 0 {
		core.LogDebug("frame %d: %d labels", packet.FrameNumber, len(packet.Texts))
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width = width
	s.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	core.LogInfo("testbed ran %d frames in %.1fs", s.frames, s.elapsed)
	return nil
}
