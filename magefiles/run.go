//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed demo with the fonts under assets/fonts.
func (Run) Demo() error {
	mg.Deps(Build.Binary, Build.Fonts)
	fmt.Println("Run demo...")
	if _, err := executeCmd("bin/typeset", withArgs("demo", "--config", "assets/typeset.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders a single label into frame.png.
func (Run) Render(text string) error {
	mg.Deps(Build.Binary, Build.Fonts)
	_, err := executeCmd("bin/typeset", withArgs("render", "--config", "assets/typeset.toml", "--text", text, "--out", "frame.png"), withStream())
	return err
}
