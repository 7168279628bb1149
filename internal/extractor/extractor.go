// Package extractor turns raw uploaded files into normalized units.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
)

// Format is the document family an extension maps to.
type Format int

const (
	FormatUnknown Format = iota
	FormatText
	FormatPDF
	FormatDOCX
	FormatImage
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatImage:
		return "image"
	}
	return "unknown"
}

var (
	textExtensions = map[string]struct{}{
		".txt": {}, ".md": {}, ".markdown": {}, ".csv": {}, ".tsv": {}, ".log": {},
		".json": {}, ".xml": {}, ".html": {}, ".htm": {}, ".yaml": {}, ".yml": {}, ".rst": {},
	}
	imageMIME = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".bmp":  "image/bmp",
		".webp": "image/webp",
		".tiff": "image/tiff",
		".tif":  "image/tiff",
	}
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// Detect maps a file name to its format by extension only.
func Detect(name string) Format {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return FormatPDF
	case ".docx", ".doc":
		return FormatDOCX
	}
	if _, ok := imageMIME[ext]; ok {
		return FormatImage
	}
	if _, ok := textExtensions[ext]; ok {
		return FormatText
	}
	return FormatUnknown
}

// Config configures an Extractor.
type Config struct {
	// TempDir receives the short-lived copy of uploads; empty means os.TempDir().
	TempDir string
	Logger  *zerolog.Logger
}

// Extractor converts files into units according to their extension.
type Extractor struct {
	tempDir string
	logger  zerolog.Logger
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Extractor{tempDir: cfg.TempDir, logger: logger.With().Str("component", "extractor").Logger()}
}

// Extract parses an uploaded file given its name and raw bytes. The bytes are
// spooled to a temporary file that is removed before Extract returns.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) ([]domain.Unit, error) {
	format := Detect(name)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(name))
	}

	tmp, err := os.CreateTemp(e.tempDir, "docchat-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", domain.ErrExtraction, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			e.logger.Warn().Err(err).Str("path", tmpPath).Msg("failed to remove temp file")
		}
	}()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil {
		return nil, fmt.Errorf("%w: write temp file: %w", domain.ErrExtraction, werr)
	}
	if cerr != nil {
		return nil, fmt.Errorf("%w: close temp file: %w", domain.ErrExtraction, cerr)
	}

	units, err := e.extract(ctx, tmpPath, format)
	if err != nil {
		return nil, err
	}
	for i := range units {
		units[i].Source = name
	}
	return units, nil
}

// ExtractFile parses a file that already lives on disk.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]domain.Unit, error) {
	format := Detect(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
	return e.extract(ctx, path, format)
}

func (e *Extractor) extract(ctx context.Context, path string, format Format) ([]domain.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	var (
		units []domain.Unit
		err   error
	)
	switch format {
	case FormatPDF:
		units, err = extractPDF(ctx, path)
	case FormatDOCX:
		units, err = extractDOCX(path)
	case FormatImage:
		units, err = extractImage(path)
	default:
		units, err = extractText(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, filepath.Base(path), err)
	}
	for i := range units {
		units[i].Source = path
	}
	e.logger.Debug().Str("format", format.String()).Int("units", len(units)).Msg("extracted document")
	return units, nil
}

func extractText(path string) ([]domain.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	return []domain.Unit{{Kind: domain.KindText, Text: string(data)}}, nil
}

func extractImage(path string) ([]domain.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mime := imageMIME[strings.ToLower(filepath.Ext(path))]
	return []domain.Unit{{Kind: domain.KindImage, Image: &domain.Image{MIME: mime, Data: data}}}, nil
}
