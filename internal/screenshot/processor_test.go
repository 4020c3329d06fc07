package screenshot

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozrentals/drivenow-scraper/internal/config"
)

// writeTestPNG writes a noisy RGBA image; noise keeps PNG from compressing
// too well so the JPEG is reliably smaller.
func writeTestPNG(t *testing.T, path string, width, height int, alpha uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x*7 + y*13) % 256),
				G: uint8((x*3 + y*29) % 256),
				B: uint8((x*17 + y*5) % 256),
				A: alpha,
			})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestCompressProducesSmallerJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	writeTestPNG(t, path, 400, 300, 255)

	out, err := Compress(path, 75, 1920)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, ".jpg"))

	// Original is gone, JPEG is smaller than the PNG was.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCompressFlattensAlpha(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	writeTestPNG(t, path, 200, 150, 128)

	out, err := Compress(path, 75, 1920)
	require.NoError(t, err)

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestCompressCapsWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.png")
	writeTestPNG(t, path, 800, 200, 255)

	out, err := Compress(path, 75, 400)
	require.NoError(t, err)

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	// Aspect ratio preserved.
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestCompressMissingFile(t *testing.T) {
	_, err := Compress(filepath.Join(t.TempDir(), "nope.png"), 75, 1920)
	assert.Error(t, err)
}

type fakeUploader struct {
	ref     string
	err     error
	gotPath string
	gotObj  string
}

func (f *fakeUploader) UploadAndRemove(_ context.Context, localPath, objectPath string) (string, error) {
	f.gotPath = localPath
	f.gotObj = objectPath
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

func TestArchiveUploadsCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	writeTestPNG(t, path, 300, 200, 255)

	up := &fakeUploader{ref: "https://shots.example.com/2025-11-18/page.jpg"}
	p := NewProcessor(config.ScreenshotConfig{Quality: 75, MaxWidth: 1920}, up, 2)

	ref, err := p.Archive(context.Background(), path, "2025-11-18")
	require.NoError(t, err)
	assert.Equal(t, up.ref, ref)
	assert.True(t, strings.HasSuffix(up.gotPath, ".jpg"))
	assert.Equal(t, "2025-11-18/page.jpg", up.gotObj)
}

func TestArchiveFallsBackToLocalPathOnUploadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	writeTestPNG(t, path, 300, 200, 255)

	up := &fakeUploader{err: fmt.Errorf("bucket unavailable")}
	p := NewProcessor(config.ScreenshotConfig{Quality: 75, MaxWidth: 1920}, up, 2)

	ref, err := p.Archive(context.Background(), path, "2025-11-18")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".jpg"))
	_, statErr := os.Stat(ref)
	assert.NoError(t, statErr)
}

func TestArchiveWithoutUploaderReturnsLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	writeTestPNG(t, path, 300, 200, 255)

	p := NewProcessor(config.ScreenshotConfig{Quality: 75, MaxWidth: 1920}, nil, 2)
	ref, err := p.Archive(context.Background(), path, "ignored")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".jpg"))
}
