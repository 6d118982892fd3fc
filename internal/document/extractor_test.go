package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	path := filepath.Join(t.TempDir(), "extract-test"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func createTempPDF(t *testing.T, paragraphs []string) string {
	path := filepath.Join(t.TempDir(), "extract-test.pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	for _, paragraph := range paragraphs {
		pdf.MultiCell(0, 10, paragraph, "", "", false)
		pdf.Ln(12)
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func TestPlainTextExtractor(t *testing.T) {
	content := "First paragraph with enough text.\n\nSecond paragraph here.\n\n1\n\nThird paragraph closes the file."
	file := createTempFile(t, content, ".txt")

	extractor := NewPlainTextExtractor()
	result, err := extractor.Extract(file)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalPages)
	// 过短的"1"被当作噪声丢弃
	require.Len(t, result.Units, 3)
	for i, unit := range result.Units {
		assert.Equal(t, i, unit.Index)
		assert.Equal(t, 0, unit.Page)
		assert.Equal(t, defaultPageWidth, unit.PageWidth)
		assert.Equal(t, defaultPageHeight, unit.PageHeight)
	}
	assert.Equal(t, "Second paragraph here.", result.Units[1].Text)
}

func TestPlainTextExtractor_EmptyContent(t *testing.T) {
	file := createTempFile(t, "", ".txt")

	extractor := NewPlainTextExtractor()
	result, err := extractor.Extract(file)

	// 空文档是合法输入，产出零个单元而不报错
	require.NoError(t, err)
	assert.Empty(t, result.Units)
}

func TestPlainTextExtractor_Reader(t *testing.T) {
	extractor := NewPlainTextExtractor()
	result, err := extractor.ExtractReader(strings.NewReader("Windows line endings here.\r\n\r\nSecond block."), "notes.txt")
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", result.FileName)
	require.Len(t, result.Units, 2)
	assert.Equal(t, "Windows line endings here.", result.Units[0].Text)
}

func TestMarkdownExtractor(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file with a full paragraph.\n\n- Item 1\n- Item 2"
	file := createTempFile(t, content, ".md")

	extractor := NewMarkdownExtractor()
	result, err := extractor.Extract(file)
	require.NoError(t, err)
	require.NotEmpty(t, result.Units)

	joined := ""
	for _, unit := range result.Units {
		assert.Equal(t, 0, unit.Page)
		joined += unit.Text + "\n"
	}
	assert.Contains(t, joined, "markdown")
	assert.Contains(t, joined, "Item 1")
	assert.NotContains(t, joined, "**")
}

func TestPDFExtractor(t *testing.T) {
	file := createTempPDF(t, []string{
		"This is the opening paragraph of the PDF test document.",
		"A second paragraph follows after a visible vertical gap.",
	})

	extractor := NewPDFExtractor()
	result, err := extractor.Extract(file)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalPages)
	require.NotEmpty(t, result.Units)

	joined := ""
	for i, unit := range result.Units {
		assert.Equal(t, i, unit.Index)
		assert.Equal(t, 0, unit.Page)
		assert.Greater(t, unit.PageWidth, 0.0)
		assert.Greater(t, unit.PageHeight, 0.0)
		assert.Greater(t, unit.Box.Width, 0.0)
		assert.GreaterOrEqual(t, unit.Box.Y1, unit.Box.Y0)
		joined += unit.Text + "\n"
	}
	assert.Contains(t, joined, "opening paragraph")
	assert.Contains(t, joined, "second paragraph")
}

func TestPDFExtractor_InvalidFile(t *testing.T) {
	file := createTempFile(t, "not a pdf at all", ".pdf")

	extractor := NewPDFExtractor()
	_, err := extractor.Extract(file)
	assert.Error(t, err)
}

func TestExtractorFactory(t *testing.T) {
	cases := map[string]bool{
		"report.pdf":  true,
		"notes.md":    true,
		"readme.txt":  true,
		"paper.docx":  true,
		"archive.zip": false,
	}

	for name, supported := range cases {
		extractor, err := ExtractorFactory(name)
		if supported {
			assert.NoError(t, err, name)
			assert.NotNil(t, extractor, name)
		} else {
			assert.Error(t, err, name)
		}
	}
}

func TestParagraphUnits(t *testing.T) {
	units := paragraphUnits("alpha paragraph\r\n\r\nbeta paragraph\n\nx\n\ngamma paragraph")

	require.Len(t, units, 3)
	assert.Equal(t, "alpha paragraph", units[0].Text)
	assert.Equal(t, "beta paragraph", units[1].Text)
	assert.Equal(t, "gamma paragraph", units[2].Text)
	assert.Equal(t, 2, units[2].Index)
}
