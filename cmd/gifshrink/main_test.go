package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gifshrink/internal/anim/animtest"
	"gifshrink/internal/compressor"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitDecode, exitCode(fmt.Errorf("%w: x", compressor.ErrDecode)))
	assert.Equal(t, exitTransform, exitCode(compressor.ErrTransform))
	assert.Equal(t, exitEncode, exitCode(fmt.Errorf("wrapped: %w", compressor.ErrEncode)))
	assert.Equal(t, exitOther, exitCode(errors.New("usage")))
}

func TestRunInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	animtest.WriteGIF(t, path, animtest.GIF(10, 6, []int{10, 20}))

	var buf bytes.Buffer
	require.NoError(t, runInspect(&buf, path))
	out := buf.String()
	assert.Contains(t, out, "Dimensions: 10x6")
	assert.Contains(t, out, "Frames:     2")
	assert.Contains(t, out, "Loop:       forever")
	assert.Contains(t, out, "Delays:     10 20")

	err := runInspect(&buf, filepath.Join(t.TempDir(), "missing.gif"))
	assert.Equal(t, exitDecode, exitCode(err))
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(50, 30, []int{10, 20, 30}))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(
		"logging:\n  file_path: %q\n", filepath.Join(dir, "gifshrink.log"))), 0644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{in, out, "--config", cfgPath, "--resize-factor", "0.5", "--max-colors", "32"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	printed := buf.String()
	assert.Contains(t, printed, "Opening "+in+"...")
	assert.Contains(t, printed, "Original size: ")
	assert.Contains(t, printed, "Processing frame 3...")
	assert.Contains(t, printed, "Processed 3 frames")
	assert.Contains(t, printed, "Saving to "+out+"...")
	assert.Contains(t, printed, "Compressed size: ")
	assert.Contains(t, printed, "Reduction: ")

	g := animtest.ReadGIF(t, out)
	assert.Equal(t, 25, g.Config.Width)
	assert.Equal(t, 15, g.Config.Height)
	assert.Equal(t, []int{10, 20, 30}, g.Delay)
	assert.Equal(t, 0, g.LoopCount)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	animtest.WriteGIF(t, filepath.Join(src, "a.gif"), animtest.GIF(20, 20, []int{10, 20}))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(
		"logging:\n  file_path: %q\n", filepath.Join(dir, "gifshrink.log"))), 0644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"batch", src, "--target", dst, "--config", cfgPath})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	printed := buf.String()
	assert.Contains(t, printed, "Compression Statistics Summary")
	assert.Contains(t, printed, "File Type Breakdown:\n  .gif: 1\n")
	assert.FileExists(t, filepath.Join(dst, "a.gif"))
}
