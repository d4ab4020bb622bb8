package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/typeset/engine/assets"
	"github.com/spaghettifunk/typeset/engine/assets/loaders"
)

type fontsOptions struct {
	*rootOptions

	dir string
}

func newFontsCmd(root *rootOptions) *cobra.Command {
	opts := &fontsOptions{rootOptions: root}

	fontsCmd := &cobra.Command{
		Use:   "fonts",
		Short: "List the fonts of a directory",
		Long: `Indexes a font directory the way the engine font catalog does and
prints the attributes resolved for every font.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.OutOrStdout())
		},
	}
	fontsCmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "font directory, defaults to font_dir of the config")
	return fontsCmd
}

func (o *fontsOptions) run(out io.Writer) error {
	dir := o.dir
	if dir == "" {
		config, err := o.loadConfig()
		if err != nil {
			return err
		}
		dir = config.FontDir
	}
	if dir == "" {
		return fmt.Errorf("no font directory, use --dir or set font_dir")
	}

	catalog, err := assets.NewFontCatalog()
	if err != nil {
		return err
	}
	defer catalog.Close()
	if err := catalog.Initialize(dir); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFAMILY\tWEIGHT\tSTYLE\tTYPE\tPATH")
	for _, info := range catalog.List() {
		face, err := loaders.LoadFontFace(info.Path)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s (%s)\n", info.Name, info.Path, err)
			continue
		}
		a := face.Attributes()
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", info.Name, a.Family, a.Weight, a.Style, a.Type, info.Path)
	}
	return w.Flush()
}
