package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"docminer/internal/models"
	"docminer/internal/util"

	"github.com/ledongthuc/pdf"
)

type pdfDocument interface {
	NumPage() int
	PageText(page int) (string, error)
	Close() error
}

type ledongthucDocument struct {
	f *os.File
	r *pdf.Reader
}

func openPDF(path string) (doc pdfDocument, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("open pdf %s: %v", path, rec)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &ledongthucDocument{f: f, r: r}, nil
}

func (d *ledongthucDocument) NumPage() int {
	return d.r.NumPage()
}

// PageText returns the text layer of a 1-based page. Malformed content streams
// panic inside the parser; they are reported as errors.
func (d *ledongthucDocument) PageText(page int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", page, rec)
		}
	}()
	p := d.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (d *ledongthucDocument) Close() error {
	return d.f.Close()
}

func (e *Extractor) processPDF(ctx context.Context, path string) ([]models.ExtractedChunk, error) {
	doc, err := e.openPDF(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	var scratch string
	defer func() {
		if scratch != "" {
			_ = os.RemoveAll(scratch)
		}
	}()

	out := make([]models.ExtractedChunk, 0, doc.NumPage())
	for page := 1; page <= doc.NumPage(); page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.PageText(page)
		if err != nil {
			e.logger.Debug("pdf text layer unreadable", "path", path, "page", page, "err", err)
			text = ""
		}
		// Unmapped fonts yield only replacement or control runes; such a page needs OCR too.
		text = util.SanitizeText(text)
		viaOCR := false
		if text == "" {
			if scratch == "" && e.ocr != nil && e.raster != nil {
				if scratch, err = os.MkdirTemp("", "docminer-pdf-*"); err != nil {
					return nil, fmt.Errorf("ocr scratch dir: %w", err)
				}
			}
			text, err = e.ocrPage(ctx, path, page, scratch)
			if err != nil {
				e.logger.Warn("pdf page ocr failed, skipping page", "path", path, "page", page, "err", err)
				continue
			}
			viaOCR = true
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		c := newChunk(text, path, models.FormatPDF)
		c.Metadata[models.MetaPage] = page
		if viaOCR {
			c.Metadata[models.MetaOCR] = true
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Extractor) ocrPage(ctx context.Context, path string, page int, dir string) (string, error) {
	if e.ocr == nil || e.raster == nil {
		return "", nil
	}
	img, err := e.raster.RenderPage(ctx, path, page, dir)
	if err != nil {
		return "", err
	}
	defer os.Remove(img)
	return e.ocr.Recognize(ctx, img)
}
