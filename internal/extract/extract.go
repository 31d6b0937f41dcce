// Package extract turns a source file into text chunks with provenance metadata.
//
// Dispatch is by extension. PDF pages without a text layer are rasterized and
// passed to OCR. Every returned chunk has non-blank content; a file with nothing
// to extract yields an empty slice, except for an unreadable image, which is an
// error matching util.ErrImageProcessingFailed.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docminer/internal/logging"
	"docminer/internal/models"
	"docminer/internal/util"
)

// SupportedExtensions lists the accepted extensions, lowercase and without the dot.
var SupportedExtensions = []string{"pdf", "xlsx", "xls", "csv", "docx", "png", "jpg", "jpeg"}

func Supported(path string) bool {
	ext := util.Ext(path)
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

type Extractor struct {
	ocr     OCR
	raster  Rasterizer
	openPDF func(path string) (pdfDocument, error)
	logger  *slog.Logger
}

type Option func(*Extractor)

func WithOCR(o OCR) Option {
	return func(e *Extractor) { e.ocr = o }
}

func WithRasterizer(r Rasterizer) Option {
	return func(e *Extractor) { e.raster = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{openPDF: openPDF}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger)
	return e
}

// ProcessFile extracts chunks from the file at path.
func (e *Extractor) ProcessFile(ctx context.Context, path string) ([]models.ExtractedChunk, error) {
	var (
		chunks []models.ExtractedChunk
		err    error
	)
	ext := util.Ext(path)
	switch ext {
	case "pdf":
		chunks, err = e.processPDF(ctx, path)
	case "xlsx":
		chunks, err = processXLSX(path)
	case "xls":
		chunks, err = processXLS(path)
	case "csv":
		chunks, err = processCSV(path)
	case "docx":
		chunks, err = processDocx(path)
	case "png", "jpg", "jpeg":
		chunks, err = e.processImage(ctx, path)
	default:
		return nil, fmt.Errorf("%w: .%s", util.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	out := keepNonBlank(chunks)
	e.logger.Debug("extracted file", "path", path, "format", ext, "chunks", len(out))
	return out, nil
}

func keepNonBlank(chunks []models.ExtractedChunk) []models.ExtractedChunk {
	out := make([]models.ExtractedChunk, 0, len(chunks))
	for _, c := range chunks {
		c.Content = util.SanitizeText(c.Content)
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func newChunk(content, path string, format models.Format) models.ExtractedChunk {
	return models.ExtractedChunk{
		Content: content,
		Metadata: models.Metadata{
			models.MetaSource: path,
			models.MetaFormat: string(format),
		},
	}
}
