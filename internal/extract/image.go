package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"docminer/internal/models"
	"docminer/internal/util"
)

var errNoOCR = errors.New("no OCR engine configured")

func (e *Extractor) processImage(ctx context.Context, path string) ([]models.ExtractedChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrImageProcessingFailed, path, err)
	}
	_, _, err = image.Decode(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %w", util.ErrImageProcessingFailed, path, err)
	}
	if e.ocr == nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrImageProcessingFailed, path, errNoOCR)
	}
	text, err := e.ocr.Recognize(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrImageProcessingFailed, path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	c := newChunk(text, path, models.FormatImage)
	c.Metadata[models.MetaOCR] = true
	return []models.ExtractedChunk{c}, nil
}
