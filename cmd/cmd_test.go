package cmd

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/spaghettifunk/typeset/engine/core"
)

func writeFonts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GoRegular.ttf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GoBold.ttf"), gobold.TTF, 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { core.SetLogLevel(core.InfoLevel) })

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRender_WritesFrameAndArtifacts(t *testing.T) {
	fonts := writeFonts(t)
	work := t.TempDir()
	frame := filepath.Join(work, "frame.png")
	artifacts := filepath.Join(work, "texts")

	out, err := execute(t, "render",
		"--font", filepath.Join(fonts, "GoRegular.ttf"),
		"--font", "bold="+filepath.Join(fonts, "GoBold.ttf"),
		"--text", "Hello", "--text", "World", "--text", "Hello",
		"--width", "160", "--height", "90",
		"--out", frame,
		"--dump-artifacts", artifacts,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+frame+" (160x90, 3 labels")
	assert.Contains(t, out, "wrote 2 texts")

	f, err := os.Open(frame)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 90, img.Bounds().Dy())

	entries, err := os.ReadDir(artifacts)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRender_FromConfigFile(t *testing.T) {
	fonts := writeFonts(t)
	work := t.TempDir()
	config := filepath.Join(work, "app.yaml")
	require.NoError(t, os.WriteFile(config, []byte(
		"font_dir: "+fonts+"\nfonts:\n  - font: GoRegular\ntext:\n  workers: 1\n"), 0o644))

	frame := filepath.Join(work, "frame.png")
	out, err := execute(t, "render", "--config", config, "--text", "from config", "--out", frame)
	require.NoError(t, err)
	assert.Contains(t, out, "800x600")
	assert.FileExists(t, frame)
}

func TestRender_Errors(t *testing.T) {
	_, err := execute(t, "render", "--text", "no font")
	assert.ErrorContains(t, err, "no font given")

	_, err = execute(t, "render", "--font", "x.ttf")
	assert.ErrorContains(t, err, "nothing to render")

	_, err = execute(t, "render", "--font", "wide=x.ttf", "--text", "a")
	assert.ErrorContains(t, err, "unknown text style")

	_, err = execute(t, "render", "--font", filepath.Join(t.TempDir(), "missing.ttf"), "--text", "a")
	assert.ErrorIs(t, err, core.ErrFontNotFound)
}

func TestFonts_ListsDirectory(t *testing.T) {
	dir := writeFonts(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.ttf"), []byte("nope"), 0o644))

	out, err := execute(t, "fonts", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `GoBold\s.*\b700\b`, out)
	assert.Regexp(t, `GoRegular\s.*\b400\b`, out)
	assert.Contains(t, out, "Broken")

	_, err = execute(t, "fonts")
	assert.ErrorContains(t, err, "no font directory")
}

func TestDemo_RunsForDuration(t *testing.T) {
	fonts := writeFonts(t)
	frame := filepath.Join(t.TempDir(), "demo.png")

	out, err := execute(t, "demo",
		"--font", filepath.Join(fonts, "GoRegular.ttf"),
		"--font", "bold="+filepath.Join(fonts, "GoBold.ttf"),
		"--duration", "200ms",
		"--out", frame,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+frame)
	assert.FileExists(t, frame)

	_, err = execute(t, "demo")
	assert.ErrorContains(t, err, "no font given")
}
