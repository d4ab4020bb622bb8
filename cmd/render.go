package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/typeset/engine"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
	"github.com/spaghettifunk/typeset/engine/systems"
)

var labelColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

type renderOptions struct {
	*rootOptions

	fonts   []string
	texts   []string
	size    uint32
	x       int
	y       int
	width   uint32
	height  uint32
	out     string
	frames  uint64
	dumpDir string
}

func newRenderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{rootOptions: root}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render labels into a PNG",
		Long: `Lays out every --text as a label below the previous one, waits until
the engine has rasterized all of them and writes the framebuffer as PNG.

Fonts are catalog names or paths. Prefix a font with a style to register
it for that style, e.g. --font bold=GoBold.ttf. The first font is the
default one.`,
		Example: `  typeset render --font GoRegular.ttf --text "Hello" --text "World" --out frame.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	renderCmd.Flags().StringArrayVarP(&opts.fonts, "font", "f", nil, "font to load, [style=]name-or-path (repeatable)")
	renderCmd.Flags().StringArrayVarP(&opts.texts, "text", "t", nil, "label to render (repeatable)")
	renderCmd.Flags().Uint32VarP(&opts.size, "size", "s", engine.DefaultFontSize, "font size in pixels")
	renderCmd.Flags().IntVar(&opts.x, "x", 8, "left of the first label")
	renderCmd.Flags().IntVar(&opts.y, "y", 8, "top of the first label")
	renderCmd.Flags().Uint32Var(&opts.width, "width", 0, "framebuffer width, 0 keeps the configured one")
	renderCmd.Flags().Uint32Var(&opts.height, "height", 0, "framebuffer height, 0 keeps the configured one")
	renderCmd.Flags().StringVarP(&opts.out, "out", "o", "frame.png", "output PNG")
	renderCmd.Flags().Uint64Var(&opts.frames, "frames", 600, "frames to wait for the texts before giving up")
	renderCmd.Flags().StringVar(&opts.dumpDir, "dump-artifacts", "", "also write every rendered text to this directory")
	return renderCmd
}

func parseFontFlag(value string) (systems.FontConfig, error) {
	style, font, ok := strings.Cut(value, "=")
	if !ok {
		return systems.FontConfig{Font: value}, nil
	}
	if _, err := systems.ParseTextStyle(style); err != nil {
		return systems.FontConfig{}, err
	}
	return systems.FontConfig{Font: font, Style: style}, nil
}

func (o *renderOptions) applicationConfig() (engine.ApplicationConfig, error) {
	config, err := o.loadConfig()
	if err != nil {
		return config, err
	}
	for _, f := range o.fonts {
		fc, err := parseFontFlag(f)
		if err != nil {
			return config, err
		}
		config.Fonts = append(config.Fonts, fc)
	}
	if len(config.Fonts) == 0 {
		return config, errors.New("no font given, use --font or a config file")
	}
	if len(o.texts) == 0 {
		return config, errors.New("nothing to render, use --text")
	}
	if o.width > 0 {
		config.StartWidth = o.width
	}
	if o.height > 0 {
		config.StartHeight = o.height
	}
	// frames are driven by hand, as fast as the texts come in
	config.TargetFPS = 0
	return config, nil
}

func (o *renderOptions) run(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	config, err := o.applicationConfig()
	if err != nil {
		return err
	}

	g := &engine.Game{
		ApplicationConfig: &config,
		FnUpdate: func(f *engine.Frame) error {
			f.SetFontSize(o.size)
			f.MoveTo(o.x, o.y)
			for _, text := range o.texts {
				f.Label(text, labelColor)
			}
			return nil
		},
	}
	e, err := engine.New(g)
	if err != nil {
		return err
	}
	defer e.Shutdown()
	if err := e.Initialize(); err != nil {
		return err
	}

	frames, err := renderUntilReady(ctx, e, o.frames)
	if err != nil {
		return err
	}

	if err := writePNG(o.out, e.Framebuffer()); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s (%dx%d, %d labels, %d frames)\n", o.out, config.StartWidth, config.StartHeight, len(o.texts), frames)

	if o.dumpDir != "" {
		font, _ := g.SystemManager.FontSystem().Style(metadata.TEXT_STYLE_DEFAULT)
		n, err := dumpArtifacts(ctx, g.SystemManager.TextSystem(), o.texts, o.size, font, o.dumpDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d texts to %s\n", n, o.dumpDir)
	}
	return nil
}

// renderUntilReady runs frames until no label waits for its text.
func renderUntilReady(ctx context.Context, e *engine.Engine, maxFrames uint64) (uint64, error) {
	var report metadata.FrameReport
	for frame := uint64(1); frame <= maxFrames; frame++ {
		var err error
		if report, err = e.Frame(); err != nil {
			return frame, err
		}
		if report.Pending == 0 {
			return frame, nil
		}
		select {
		case <-ctx.Done():
			return frame, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return maxFrames, fmt.Errorf("%d labels still pending after %d frames", report.Pending, maxFrames)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// dumpArtifacts writes the cached rendering of every text as its own PNG.
// Texts that are not cached are skipped.
func dumpArtifacts(ctx context.Context, texts *systems.TextSystem, labels []string, size uint32, font metadata.FontHandle, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	// the text system belongs to this goroutine, only the encoding fans out
	var artifacts []*metadata.CachedText
	seen := make(map[uint64]bool)
	for _, label := range labels {
		t, ok := texts.LookupCached(label, size, font)
		if !ok || seen[t.ID] || t.Width == 0 || t.Height == 0 {
			continue
		}
		seen[t.ID] = true
		artifacts = append(artifacts, t)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, t := range artifacts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writePNG(filepath.Join(dir, fmt.Sprintf("text_%03d.png", t.ID)), t.RGBA())
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(artifacts), nil
}
