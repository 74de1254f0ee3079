package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  [][]string
	stdout string
	err    error
	// onRun lets a test produce files the real binary would write.
	onRun func(args []string)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.onRun != nil {
		f.onRun(args)
	}
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	return []byte(f.stdout), nil, nil
}

func TestExtractTextNormalizes(t *testing.T) {
	r := &fakeRunner{stdout: "BIEDRONKA\r\n\r\n\r\n\r\nMleko  UHT\t3,49\n-----\nSUMA PLN 3,49\n"}
	e := NewExtractor(Config{}, nil, WithRunner(r))

	txt, err := e.ExtractText(context.Background(), "/tmp/r.jpg")
	require.NoError(t, err)
	assert.Equal(t, "BIEDRONKA\n\nMleko UHT 3,49\n\nSUMA PLN 3,49", txt)

	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"tesseract", "/tmp/r.jpg", "stdout", "-l", "pol"}, r.calls[0])
}

func TestExtractTextEmptyIsNotAnError(t *testing.T) {
	e := NewExtractor(Config{}, nil, WithRunner(&fakeRunner{stdout: "  \n\t\n"}))
	txt, err := e.ExtractText(context.Background(), "/tmp/r.jpg")
	require.NoError(t, err)
	assert.Empty(t, txt)
}

func TestExtractTextRunnerFailure(t *testing.T) {
	e := NewExtractor(Config{TessdataDir: "/data"}, nil, WithRunner(&fakeRunner{err: errors.New("exit status 1")}))
	_, err := e.ExtractText(context.Background(), "/tmp/r.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
}

func TestRasterizeFirstPage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "page.png")
	r := &fakeRunner{onRun: func(args []string) {
		prefix := args[len(args)-1]
		_ = os.WriteFile(prefix+".png", []byte("png"), 0o644)
	}}
	e := NewExtractor(Config{}, nil, WithRunner(r))

	require.NoError(t, e.RasterizeFirstPage(context.Background(), "/tmp/in.pdf", out))
	assert.FileExists(t, out)
	assert.Equal(t, []string{"pdftoppm", "-r", "300", "-f", "1", "-l", "1", "-png", "-singlefile", "/tmp/in.pdf", filepath.Join(dir, "page")}, r.calls[0])
}

func TestRasterizeNoOutput(t *testing.T) {
	e := NewExtractor(Config{}, nil, WithRunner(&fakeRunner{}))
	err := e.RasterizeFirstPage(context.Background(), "/tmp/in.pdf", filepath.Join(t.TempDir(), "x.png"))
	assert.Error(t, err)
}

func TestHeuristicConfidence(t *testing.T) {
	low := heuristicConfidence("hello")
	high := heuristicConfidence("PARAGON FISKALNY 2024-03-15\nMleko 3,49\nSUMA PLN 3,49")
	assert.Less(t, low, high)
	assert.LessOrEqual(t, high, float32(1.0))
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := newExecRunner(slog.Default())
	_, _, err := r.Run(context.Background(), "paragon-no-such-binary")
	assert.ErrorIs(t, err, ErrToolMissing)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "zaż...(truncated)", truncate("zażółć", 4))
}
