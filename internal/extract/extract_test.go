package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docminer/internal/models"
	"docminer/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestUnsupportedExtensionNamesTheExtension(t *testing.T) {
	_, err := New().ProcessFile(context.Background(), "notes.TXT")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".txt")
	assert.False(t, Supported("notes.txt"))
	assert.True(t, Supported("scan.JPEG"))
}

func TestCSVRendersOneTableChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte("\xEF\xBB\xBFname,amount\nAcme,310\nGlobex,7.5\n"), 0o644))

	chunks, err := New().ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	want := strings.Join([]string{
		"| name   | amount |",
		"|:-------|-------:|",
		"| Acme   |    310 |",
		"| Globex |    7.5 |",
	}, "\n")
	assert.Equal(t, want, chunks[0].Content)
	assert.Equal(t, "csv", chunks[0].Metadata[models.MetaFormat])
}

func TestBlankSourcesYieldNoChunks(t *testing.T) {
	dir := t.TempDir()
	blankCSV := filepath.Join(dir, "blank.csv")
	require.NoError(t, os.WriteFile(blankCSV, []byte("\n\n"), 0o644))
	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("a,b\n"), 0o644))
	emptyDocx := filepath.Join(dir, "empty.docx")
	writeDocx(t, emptyDocx, `<w:p><w:r><w:t>   </w:t></w:r></w:p><w:p/>`)

	e := New()
	for _, p := range []string{blankCSV, headerOnly, emptyDocx} {
		chunks, err := e.ProcessFile(context.Background(), p)
		require.NoError(t, err, p)
		assert.Empty(t, chunks, p)
	}
}

func TestDocxJoinsBodyParagraphs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.docx")
	writeDocx(t, path,
		`<w:p><w:r><w:t>Quarterly </w:t></w:r><w:r><w:t>report</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell text</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			`<w:p><w:hyperlink><w:r><w:t>Revenue</w:t></w:r></w:hyperlink><w:r><w:tab/><w:t>12k</w:t></w:r></w:p>`)

	chunks, err := New().ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Quarterly report\nRevenue\t12k", chunks[0].Content)
	assert.Equal(t, "docx", chunks[0].Metadata[models.MetaFormat])
}

func TestCorruptDocxIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.docx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := New().ProcessFile(context.Background(), path)
	require.Error(t, err)
}

func TestXLSXOneChunkPerNonEmptySheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "sku"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "qty"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "X-1"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 4))
	_, err := f.NewSheet("Empty")
	require.NoError(t, err)
	_, err = f.NewSheet("Headers")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Headers", "A1", "only"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	chunks, err := New().ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Sheet1", chunks[0].Metadata[models.MetaSheet])
	assert.Equal(t, "excel", chunks[0].Metadata[models.MetaFormat])
	assert.Contains(t, chunks[0].Content, "| X-1 |")
}

func TestImageOCR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.png")
	writePNG(t, path)

	chunks, err := New(WithOCR(&fakeOCR{text: "TOTAL 12.00\n"})).ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "TOTAL 12.00", chunks[0].Content)
	assert.Equal(t, "image", chunks[0].Metadata[models.MetaFormat])

	chunks, err = New(WithOCR(&fakeOCR{text: " "})).ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCorruptImageFailsWithImageProcessingError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a jpeg"), 0o644))
	ocr := &fakeOCR{text: "unused"}

	_, err := New(WithOCR(ocr)).ProcessFile(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrImageProcessingFailed)
	assert.Equal(t, 0, ocr.count())
}

func TestImageOCRErrorIsWrapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	writePNG(t, path)
	cause := errors.New("engine exploded")

	_, err := New(WithOCR(&fakeOCR{err: cause})).ProcessFile(context.Background(), path)
	assert.ErrorIs(t, err, util.ErrImageProcessingFailed)
	assert.ErrorIs(t, err, cause)
}

func TestRenderTableNamesBlankHeaders(t *testing.T) {
	out := renderTable([][]string{{"", "b"}, {"1", "x|y"}, {"", ""}})
	assert.Equal(t, "| Unnamed: 0 | b    |\n|-----------:|:-----|\n|          1 | x\\|y |", out)
}

func TestMissingOCREngineBinary(t *testing.T) {
	_, err := NewTesseractOCR("docminer-no-such-tesseract", "eng")
	assert.Error(t, err)
	_, err = NewPopplerRasterizer("docminer-no-such-pdftoppm", 150)
	assert.Error(t, err)
}
