package screenshot

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ozrentals/drivenow-scraper/internal/config"
)

// Uploader is the slice of the storage client the processor needs.
type Uploader interface {
	UploadAndRemove(ctx context.Context, localPath, objectPath string) (string, error)
}

// Processor compresses raw page screenshots and hands them to storage. A
// bounded worker pool keeps image work off the scraping goroutines' backs,
// and a hard per-image timeout stops one huge screenshot from stalling a
// run.
type Processor struct {
	cfg      config.ScreenshotConfig
	uploader Uploader
	slots    chan struct{}
	timeout  time.Duration
	logger   *slog.Logger
}

func NewProcessor(cfg config.ScreenshotConfig, uploader Uploader, workers int) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		cfg:      cfg,
		uploader: uploader,
		slots:    make(chan struct{}, workers),
		timeout:  60 * time.Second,
		logger:   slog.Default().With("component", "screenshot"),
	}
}

// Archive compresses the screenshot at localPath and uploads it, returning
// the reference to store. Compression failures degrade to uploading the raw
// file; upload failures degrade to the local path so the record still
// carries something useful.
func (p *Processor) Archive(ctx context.Context, localPath, objectDir string) (string, error) {
	finalPath := localPath
	if compressed, err := p.compressWithTimeout(ctx, localPath); err != nil {
		p.logger.Warn("screenshot compression failed, uploading original", "path", localPath, "error", err)
	} else {
		finalPath = compressed
	}

	if p.uploader == nil {
		return finalPath, nil
	}

	objectPath := filepath.ToSlash(filepath.Join(objectDir, filepath.Base(finalPath)))
	ref, err := p.uploader.UploadAndRemove(ctx, finalPath, objectPath)
	if err != nil {
		p.logger.Warn("screenshot upload failed, keeping local path", "path", finalPath, "error", err)
		return finalPath, nil
	}
	return ref, nil
}

func (p *Processor) compressWithTimeout(ctx context.Context, path string) (string, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.slots }()

	type result struct {
		path string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, err := Compress(path, p.cfg.Quality, p.cfg.MaxWidth)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.path, r.err
	case <-time.After(p.timeout):
		return "", fmt.Errorf("compression timed out after %s", p.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Compress converts a PNG screenshot to a JPEG next to it: transparency is
// flattened onto white, the image is capped at maxWidth, and the original
// is removed once the JPEG is confirmed smaller. If the JPEG somehow comes
// out larger the original is kept instead.
func Compress(path string, quality, maxWidth int) (string, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open screenshot: %w", err)
	}

	flattened := flattenOntoWhite(src)
	if maxWidth > 0 && flattened.Bounds().Dx() > maxWidth {
		flattened = imaging.Resize(flattened, maxWidth, 0, imaging.Lanczos)
	}

	jpegPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	if err := imaging.Save(flattened, jpegPath, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to save compressed screenshot: %w", err)
	}

	origInfo, err := os.Stat(path)
	if err != nil {
		return jpegPath, nil
	}
	jpegInfo, err := os.Stat(jpegPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat compressed screenshot: %w", err)
	}

	if jpegInfo.Size() >= origInfo.Size() {
		os.Remove(jpegPath)
		return path, nil
	}

	if err := os.Remove(path); err != nil {
		slog.Default().Warn("failed to remove original screenshot", "path", path, "error", err)
	}
	return jpegPath, nil
}

func flattenOntoWhite(src image.Image) *image.NRGBA {
	bg := imaging.New(src.Bounds().Dx(), src.Bounds().Dy(), image.White.C)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}
