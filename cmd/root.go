package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/typeset/engine"
	"github.com/spaghettifunk/typeset/engine/core"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

// loadConfig returns the configured application config, or the defaults
// when no file was given.
func (o *rootOptions) loadConfig() (engine.ApplicationConfig, error) {
	config := engine.DefaultApplicationConfig()
	if o.configFile != "" {
		var err error
		if config, err = engine.LoadApplicationConfig(o.configFile); err != nil {
			return config, err
		}
	}
	if o.logLevel != "" {
		config.LogLevel = o.logLevel
	}
	return config, nil
}

// NewRootCmd builds the typeset command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "typeset",
		Short: "Render text asynchronously through the typeset engine",
		Long: `typeset drives the headless engine: fonts are measured right away,
texts are rasterized on the job system and composed into a framebuffer
once they are ready.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel == "" {
				return nil
			}
			level, err := core.ParseLogLevel(opts.logLevel)
			if err != nil {
				return err
			}
			core.SetLogLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "application config file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRenderCmd(opts))
	rootCmd.AddCommand(newFontsCmd(opts))
	rootCmd.AddCommand(newDemoCmd(opts))
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). Commands stop when ctx is done.
func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
