//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

const fontsDir = "assets/fonts"

// Writes the Go fonts used by the demo config into assets/fonts.
func (Build) Fonts() error {
	if err := os.MkdirAll(fontsDir, 0o755); err != nil {
		return err
	}
	fonts := map[string][]byte{
		"GoRegular.ttf": goregular.TTF,
		"GoBold.ttf":    gobold.TTF,
		"GoMono.ttf":    gomono.TTF,
	}
	for name, data := range fonts {
		path := filepath.Join(fontsDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		fmt.Printf("Writing %s\n", path)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
