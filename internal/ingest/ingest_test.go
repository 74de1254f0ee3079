package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pantry-receipts/constants"
)

func transparentPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	// left half black, right half fully transparent
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.Set(x, y, color.NRGBA{A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeRaster struct {
	err   error
	calls int
}

func (f *fakeRaster) RasterizeFirstPage(_ context.Context, _, outPNG string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 20, 30))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return os.WriteFile(outPNG, buf.Bytes(), 0o644)
}

func newService(t *testing.T, max int64, r Rasterizer) *Service {
	t.Helper()
	return NewService(Config{UploadDir: t.TempDir(), MaxUploadBytes: max, ThumbnailSize: 8}, r, nil)
}

func TestIngestImageFlattensOntoWhite(t *testing.T) {
	s := newService(t, 0, nil)
	res, err := s.Ingest(context.Background(), bytes.NewReader(transparentPNG(t, 40, 20)), "paragon.png", "image/png")
	require.NoError(t, err)

	assert.Equal(t, constants.MIMEPNG, res.MIMEType)
	assert.Equal(t, "paragon.png", res.OriginalFilename)
	assert.Empty(t, res.OriginalPath)
	assert.True(t, strings.HasSuffix(res.FilePath, ".jpg"))
	assert.Len(t, res.SHA256, 64)

	f, err := os.Open(res.FilePath)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	r, g, b, _ := img.At(35, 10).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
	r, _, _, _ = img.At(2, 10).RGBA()
	assert.Less(t, r>>8, uint32(20))

	require.NotEmpty(t, res.ThumbnailPath)
	tf, err := os.Open(res.ThumbnailPath)
	require.NoError(t, err)
	defer tf.Close()
	cfg, err := jpeg.DecodeConfig(tf)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, 4, cfg.Height)
}

func TestIngestRejectsTooLarge(t *testing.T) {
	s := newService(t, 10, nil)
	_, err := s.Ingest(context.Background(), bytes.NewReader(transparentPNG(t, 10, 10)), "big.png", "")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestIngestSniffsContentNotDeclaredType(t *testing.T) {
	s := newService(t, 0, nil)
	_, err := s.Ingest(context.Background(), strings.NewReader("just some text, not a receipt"), "fake.jpg", "image/jpeg")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestIngestCorruptImageIsInvalidFile(t *testing.T) {
	s := newService(t, 0, nil)
	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)
	_, err := s.Ingest(context.Background(), bytes.NewReader(data), "broken.png", "")
	assert.ErrorIs(t, err, ErrInvalidFile)
	assert.NotErrorIs(t, err, ErrUnsupportedType)

	entries, err := os.ReadDir(s.cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestPDFKeepsOriginal(t *testing.T) {
	raster := &fakeRaster{}
	s := newService(t, 0, raster)
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

	res, err := s.Ingest(context.Background(), bytes.NewReader(pdf), "scan.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, raster.calls)
	assert.Equal(t, constants.MIMEPDF, res.MIMEType)
	assert.True(t, strings.HasSuffix(res.OriginalPath, ".pdf"))
	assert.True(t, strings.HasSuffix(res.FilePath, ".png"))
	assert.FileExists(t, res.OriginalPath)
	assert.FileExists(t, res.FilePath)

	require.NoError(t, Remove(res.FilePath, res.OriginalPath, res.ThumbnailPath, ""))
	assert.NoFileExists(t, res.OriginalPath)
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(1600, 800, 800)
	assert.Equal(t, 800, w)
	assert.Equal(t, 400, h)
	w, h = fitWithin(300, 200, 800)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
	w, h = fitWithin(400, 1600, 800)
	assert.Equal(t, 200, w)
	assert.Equal(t, 800, h)
}

func TestWalkDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden", "c.png"), []byte("x"), 0o644))

	var seen []string
	results, stats, err := WalkDirectory(context.Background(), root, true, func(_ context.Context, p string) (string, error) {
		seen = append(seen, filepath.Base(p))
		return "id-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, seen)
	assert.Equal(t, uint32(1), stats.Matched)
	assert.Equal(t, uint32(1), stats.Succeeded)
	require.Len(t, results, 1)
	assert.Equal(t, "id-1", results[0].ID)
}

func TestWatcherEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.png"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	got := map[string]bool{}
	waitFor := func(name string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for !got[name] {
			select {
			case p := <-events:
				got[filepath.Base(p)] = true
			case <-deadline:
				t.Fatalf("timed out waiting for %s", name)
			}
		}
	}
	waitFor("old.png")

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.jpg"), []byte("x"), 0o644))
	waitFor("new.jpg")
	assert.False(t, got["notes.txt"])

	cancel()
	for range events {
	}
}
