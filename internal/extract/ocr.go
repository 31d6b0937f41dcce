package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// OCR recognizes text in an image file.
type OCR interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Rasterizer renders one 1-based PDF page into a PNG inside outDir and returns its path.
type Rasterizer interface {
	RenderPage(ctx context.Context, pdfPath string, page int, outDir string) (string, error)
}

// TesseractOCR shells out to the tesseract CLI.
type TesseractOCR struct {
	binary   string
	language string
}

func NewTesseractOCR(binary, language string) (*TesseractOCR, error) {
	if binary == "" {
		binary = "tesseract"
	}
	bin, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ocr engine %q not found: %w", binary, err)
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{binary: bin, language: language}, nil
}

func (t *TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, t.binary, imagePath, "stdout", "-l", t.language)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", filepath.Base(imagePath), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// PopplerRasterizer renders pages with pdftoppm.
type PopplerRasterizer struct {
	binary string
	dpi    int
}

func NewPopplerRasterizer(binary string, dpi int) (*PopplerRasterizer, error) {
	if binary == "" {
		binary = "pdftoppm"
	}
	bin, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("rasterizer %q not found: %w", binary, err)
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &PopplerRasterizer{binary: bin, dpi: dpi}, nil
}

func (p *PopplerRasterizer) RenderPage(ctx context.Context, pdfPath string, page int, outDir string) (string, error) {
	prefix := filepath.Join(outDir, "page-"+strconv.Itoa(page))
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binary, "-f", n, "-l", n, "-r", strconv.Itoa(p.dpi), "-png", "-singlefile", pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}
	return prefix + ".png", nil
}
