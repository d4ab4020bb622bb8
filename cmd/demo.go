package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/typeset/engine"
	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/testbed"
)

type demoOptions struct {
	*rootOptions

	fonts    []string
	duration time.Duration
	out      string
}

func newDemoCmd(root *rootOptions) *cobra.Command {
	opts := &demoOptions{rootOptions: root}

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the testbed game",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := opts.loadConfig()
			if err != nil {
				return err
			}
			for _, f := range opts.fonts {
				fc, err := parseFontFlag(f)
				if err != nil {
					return err
				}
				config.Fonts = append(config.Fonts, fc)
			}
			if len(config.Fonts) == 0 {
				return errors.New("no font given, use --font or a config file")
			}

			tg := testbed.NewTestGame(config, opts.duration.Seconds())
			e, err := engine.New(tg.Game)
			if err != nil {
				return err
			}
			defer e.Shutdown()
			if err := e.Initialize(); err != nil {
				return err
			}
			if err := e.Run(cmd.Context(), 0); err != nil {
				return err
			}

			m := e.FrameMetrics()
			core.LogInfo("last frames: %.2fms average, %.0f fps", m.FrameTime(), m.FPS())
			if opts.out != "" {
				if err := writePNG(opts.out, e.Framebuffer()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.out)
			}
			return nil
		},
	}

	demoCmd.Flags().StringArrayVarP(&opts.fonts, "font", "f", nil, "font to load, [style=]name-or-path (repeatable)")
	demoCmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long, 0 runs until interrupted")
	demoCmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the last frame to this PNG")
	return demoCmd
}
