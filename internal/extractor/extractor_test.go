package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
)

func newTestExtractor(t *testing.T) (*Extractor, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Config{TempDir: dir}), dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"notes.txt", FormatText},
		{"README.MD", FormatText},
		{"paper.pdf", FormatPDF},
		{"Report.DOCX", FormatDOCX},
		{"legacy.doc", FormatDOCX},
		{"photo.JPG", FormatImage},
		{"scan.tiff", FormatImage},
		{"anim.webp", FormatImage},
		{"archive.zip", FormatUnknown},
		{"noext", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.name))
		})
	}
}

func TestExtract_PlainText(t *testing.T) {
	ex, dir := newTestExtractor(t)
	content := strings.Repeat("Plain text content. ", 25)

	units, err := ex.Extract(context.Background(), "notes.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, domain.KindText, units[0].Kind)
	assert.Equal(t, content, units[0].Text)
	assert.Equal(t, "notes.txt", units[0].Source)
	assertEmptyDir(t, dir)
}

func TestExtract_StripsBOM(t *testing.T) {
	ex, _ := newTestExtractor(t)

	units, err := ex.Extract(context.Background(), "bom.txt", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "hello", units[0].Text)
}

func TestExtract_InvalidUTF8(t *testing.T) {
	ex, dir := newTestExtractor(t)

	_, err := ex.Extract(context.Background(), "bad.txt", []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assertEmptyDir(t, dir)
}

func TestExtract_Image(t *testing.T) {
	ex, dir := newTestExtractor(t)
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}

	units, err := ex.Extract(context.Background(), "Diagram.PNG", payload)
	require.NoError(t, err)
	require.Len(t, units, 1)
	u := units[0]
	assert.True(t, u.IsImage())
	require.NotNil(t, u.Image)
	assert.Equal(t, "image/png", u.Image.MIME)
	assert.Equal(t, payload, u.Image.Data)
	assertEmptyDir(t, dir)
}

func TestExtract_Unsupported(t *testing.T) {
	ex, dir := newTestExtractor(t)

	_, err := ex.Extract(context.Background(), "binary.exe", []byte("MZ"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assertEmptyDir(t, dir)
}

// buildPDF writes a minimal PDF with one page per entry; an empty entry
// yields a page without text.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")

	fontID := 3 + 2*len(pages)
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	for i, text := range pages {
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtract_PDFOneUnitPerPage(t *testing.T) {
	ex, dir := newTestExtractor(t)
	data := buildPDF(t, "Hello page one", "", "Third page text")

	units, err := ex.Extract(context.Background(), "report.pdf", data)
	require.NoError(t, err)
	require.Len(t, units, 2, "the blank page is skipped")

	assert.Equal(t, domain.KindText, units[0].Kind)
	assert.Equal(t, 1, units[0].Page)
	assert.Equal(t, "Hello page one", strings.TrimSpace(units[0].Text))
	assert.Equal(t, 3, units[1].Page)
	assert.Equal(t, "Third page text", strings.TrimSpace(units[1].Text))
	for _, u := range units {
		assert.Equal(t, "report.pdf", u.Source)
	}
	assertEmptyDir(t, dir)
}

func TestExtract_CancelledContext(t *testing.T) {
	ex, dir := newTestExtractor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Extract(ctx, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.ErrorIs(t, err, context.Canceled)
	assertEmptyDir(t, dir)
}

func TestExtract_CorruptPDFCleansUp(t *testing.T) {
	ex, dir := newTestExtractor(t)

	_, err := ex.Extract(context.Background(), "broken.pdf", []byte("this is not a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assertEmptyDir(t, dir)
}

func TestExtract_Docx(t *testing.T) {
	ex, dir := newTestExtractor(t)
	body := `<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
		`<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
		`<w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>` +
		`<w:tbl>` +
		`<w:tr><w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>Ada</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Engineer</w:t></w:r></w:p></w:tc></w:tr>` +
		`</w:tbl>`

	units, err := ex.Extract(context.Background(), "report.docx", buildDocx(t, body))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "First paragraph.\nSecond paragraph.\nName Role\nAda Engineer", units[0].Text)
	assertEmptyDir(t, dir)
}

func TestExtract_DocxMissingDocumentPart(t *testing.T) {
	ex, _ := newTestExtractor(t)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ex.Extract(context.Background(), "empty.docx", buf.Bytes())
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractFile(t *testing.T) {
	ex, _ := newTestExtractor(t)
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody"), 0o644))

	units, err := ex.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "# Title\n\nBody", units[0].Text)
	assert.Equal(t, path, units[0].Source)
}

func TestParseDocumentXML_NoTables(t *testing.T) {
	paragraphs, rows, err := parseDocumentXML(strings.NewReader(
		`<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t></w:r></w:p><w:p/></w:body></w:document>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a\tb", ""}, paragraphs)
	assert.Empty(t, rows)
}
