// Package ingest validates uploaded receipts and normalizes them into a
// single raster image ready for OCR.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidFile     = errors.New("invalid file")
)

// Rasterizer renders the first page of a PDF to a PNG file.
type Rasterizer interface {
	RasterizeFirstPage(ctx context.Context, pdfPath, outPNG string) error
}

type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	JPEGQuality    int
	ThumbnailSize  int
}

// Result describes the files written for one upload.
type Result struct {
	ID               uuid.UUID
	OriginalFilename string
	MIMEType         string // sniffed from content
	FilePath         string // canonical processable image
	OriginalPath     string // preserved PDF, empty for images
	ThumbnailPath    string // empty when no thumbnail could be made
	Size             int64
	SHA256           string
}

type Service struct {
	cfg    Config
	raster Rasterizer
	logger *slog.Logger
}

func NewService(cfg Config, raster Rasterizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = constants.DefaultMaxUploadBytes
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = constants.DefaultJPEGQuality
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = constants.DefaultThumbnailSize
	}
	return &Service{cfg: cfg, raster: raster, logger: logger}
}

// Ingest validates r and writes the normalized image (plus the original PDF
// and a thumbnail when applicable) under the upload directory. declaredType
// is only logged; the content decides.
func (s *Service) Ingest(ctx context.Context, r io.Reader, filename, declaredType string) (Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		s.logger.Warn("ingest.rejected", "filename", filename, "reason", "too_large", "max_bytes", s.cfg.MaxUploadBytes)
		return Result{}, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.cfg.MaxUploadBytes)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: empty upload", ErrInvalidFile)
	}

	mime := sniff(data)
	if _, ok := constants.AllowedMIMETypes[mime]; !ok {
		s.logger.Warn("ingest.rejected", "filename", filename, "reason", "unsupported_type", "sniffed", mime, "declared", declaredType)
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}
	if declaredType != "" && !strings.HasPrefix(declaredType, mime) {
		s.logger.Debug("ingest.declared_type_mismatch", "declared", declaredType, "sniffed", mime)
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create upload dir: %w", err)
	}

	sum := sha256.Sum256(data)
	res := Result{
		ID:               uuid.New(),
		OriginalFilename: filepath.Base(filename),
		MIMEType:         mime,
		Size:             int64(len(data)),
		SHA256:           hex.EncodeToString(sum[:]),
	}

	var written []string
	fail := func(err error) (Result, error) {
		for _, p := range written {
			_ = os.Remove(p)
		}
		return Result{}, err
	}

	if mime == constants.MIMEPDF {
		if s.raster == nil {
			return fail(fmt.Errorf("%w: pdf rasterizer not configured", ErrUnsupportedType))
		}
		res.OriginalPath = s.path(res.ID, constants.ExtForMIME(mime))
		if err := os.WriteFile(res.OriginalPath, data, 0o644); err != nil {
			return fail(fmt.Errorf("save pdf: %w", err))
		}
		written = append(written, res.OriginalPath)

		res.FilePath = s.path(res.ID, ".png")
		if err := s.raster.RasterizeFirstPage(ctx, res.OriginalPath, res.FilePath); err != nil {
			s.logger.Error("ingest.rasterize.failed", "filename", filename, "error", err)
			return fail(fmt.Errorf("%w: cannot render pdf: %v", ErrInvalidFile, err))
		}
		written = append(written, res.FilePath)
	} else {
		img, err := decode(data)
		if err != nil {
			s.logger.Warn("ingest.rejected", "filename", filename, "reason", "undecodable", "error", err)
			return fail(fmt.Errorf("%w: %v", ErrInvalidFile, err))
		}
		var buf bytes.Buffer
		if err := encodeJPEG(&buf, flatten(img), s.cfg.JPEGQuality); err != nil {
			return fail(fmt.Errorf("encode image: %w", err))
		}
		res.FilePath = s.path(res.ID, ".jpg")
		if err := os.WriteFile(res.FilePath, buf.Bytes(), 0o644); err != nil {
			return fail(fmt.Errorf("save image: %w", err))
		}
		written = append(written, res.FilePath)
	}

	thumb := s.path(res.ID, "_thumb.jpg")
	if err := writeThumbnail(res.FilePath, thumb, s.cfg.ThumbnailSize); err != nil {
		s.logger.Warn("ingest.thumbnail.failed", "file", res.FilePath, "error", err)
	} else {
		res.ThumbnailPath = thumb
	}

	s.logger.Info("ingest.saved",
		"id", res.ID,
		"filename", res.OriginalFilename,
		"mime", mime,
		"bytes", res.Size,
		"sha256", res.SHA256,
		"path", res.FilePath,
	)
	return res, nil
}

// IngestFile ingests a file from local disk, e.g. from the inbox directory.
func (s *Service) IngestFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			s.logger.Warn("close file error", "path", path, "error", err)
		}
	}(f)
	return s.Ingest(ctx, f, filepath.Base(path), "")
}

// Remove deletes every file belonging to an upload. Missing files are ignored.
func Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) path(id uuid.UUID, suffix string) string {
	return filepath.Join(s.cfg.UploadDir, id.String()+suffix)
}

func sniff(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}
