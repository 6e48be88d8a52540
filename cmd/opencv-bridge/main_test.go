package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, dir, name string, pixel func(x, y int) uint8) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := pixel(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-log-level", "error"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestSegmentWritesPNGs(t *testing.T) {
	dir := t.TempDir()
	in := writeTestPNG(t, dir, "square.png", func(x, y int) uint8 {
		if x >= 2 && x < 6 && y >= 2 && y < 6 {
			return 200
		}
		return 0
	})
	out := filepath.Join(dir, "labels.png")
	mask := filepath.Join(dir, "mask.png")

	stdout, err := runCLI(t, "", "segment", "-in", in, "-out", out, "-source", mask, "-palette")
	require.NoError(t, err)
	assert.Contains(t, stdout, "8x8\t1 contours")

	for _, path := range []string{out, mask} {
		f, err := os.Open(path)
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Width)
		assert.Equal(t, 8, cfg.Height)
	}
}

func TestSegmentRequiresPaths(t *testing.T) {
	_, err := runCLI(t, "", "segment", "-in", "x.png")
	assert.Error(t, err)
}

func TestBlurBatch(t *testing.T) {
	dir := t.TempDir()
	flat := writeTestPNG(t, dir, "flat.png", func(x, y int) uint8 { return 77 })
	sharp := writeTestPNG(t, dir, "sharp.png", func(x, y int) uint8 {
		if (x+y)%2 == 0 {
			return 255
		}
		return 0
	})

	stdout, err := runCLI(t, "", "blur", flat, sharp)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, flat+"\ttrue\tscore=-16777216", lines[0])
	assert.Equal(t, sharp+"\tfalse\tscore=-1", lines[1])
}

func TestBlurReportsMissingFile(t *testing.T) {
	dir := t.TempDir()
	flat := writeTestPNG(t, dir, "flat.png", func(x, y int) uint8 { return 77 })

	stdout, err := runCLI(t, "", "blur", flat, filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.Contains(t, stdout, "flat.png\ttrue")
	assert.Contains(t, stdout, "missing.png\terror")
}

func TestBlurRejectsUnknownMetric(t *testing.T) {
	dir := t.TempDir()
	flat := writeTestPNG(t, dir, "flat.png", func(x, y int) uint8 { return 77 })

	_, err := runCLI(t, "", "blur", "-metric", "sobel", flat)
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	stdout, err := runCLI(t, `{"id":"1","method":"getName"}`+"\n", "serve")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","result":"RNOpenCvLibrary"}`, strings.TrimSpace(stdout))
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCLI(t, "", "detect")
	assert.ErrorContains(t, err, "unknown command")
}

func TestSegmentModuleReportsStatsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	in := writeTestPNG(t, dir, "square.png", func(x, y int) uint8 { return 200 })

	var stdout, stderr bytes.Buffer
	args := []string{"-log-level", "info", "-log-format", "json",
		"segment", "-in", in, "-out", filepath.Join(dir, "labels.png"), "-seed", "3"}
	require.NoError(t, run(context.Background(), args, strings.NewReader(""), &stdout, &stderr))

	var segmentCalls []float64
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["message"] == "module shutdown" {
			segmentCalls = append(segmentCalls, entry["segment_calls"].(float64))
		}
	}

	assert.ElementsMatch(t, []float64{0, 1}, segmentCalls, "both the shared and the seeded module report")
}

func TestServeClosesStdinOnCancel(t *testing.T) {
	stdinReader, stdinWriter := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"-log-level", "error", "serve"}, stdinReader, &stdout, &stderr)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	_, err := stdinWriter.Write([]byte("{}\n"))
	assert.True(t, errors.Is(err, io.ErrClosedPipe), "stdin left open: %v", err)
}
