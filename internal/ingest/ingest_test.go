package ingest

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docent/internal/repository"
)

func TestDecodeText(t *testing.T) {
	// "مرحبا بالعالم" in Windows-1256.
	cp1256 := []byte{0xe3, 0xd1, 0xcd, 0xc8, 0xc7, 0x20, 0xc8, 0xc7, 0xe1, 0xda, 0xc7, 0xe1, 0xe3}

	tests := []struct {
		name     string
		raw      []byte
		want     string
		encoding string
	}{
		{"utf8", []byte("hello مرحبا"), "hello مرحبا", "utf-8"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("abc")...), "abc", "utf-8"},
		{"windows-1256", cp1256, "مرحبا بالعالم", "windows-1256"},
		{"utf16le bom", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", "utf-16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := decodeText(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || enc != tt.encoding {
				t.Errorf("decodeText = (%q, %q), want (%q, %q)", got, enc, tt.want, tt.encoding)
			}
		})
	}
}

func TestDecodeDocumentXML(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>عقد عمل</w:t></w:r></w:p>
    <w:p><w:r><w:t>Party One:</w:t><w:tab/><w:t>ABC Corp</w:t></w:r></w:p>
  </w:body>
</w:document>`
	text, paragraphs, err := decodeDocumentXML(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if paragraphs != 2 {
		t.Errorf("paragraphs = %d, want 2", paragraphs)
	}
	if !strings.Contains(text, "عقد عمل") || !strings.Contains(text, "Party One:\tABC Corp") {
		t.Errorf("text = %q", text)
	}
}

func TestExtractorEndToEnd(t *testing.T) {
	dir := t.TempDir()
	e := NewExtractor(ExtractorConfig{}, nil)

	txtPath := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(txtPath, []byte("السيد أحمد محمد"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := e.Extract(context.Background(), txtPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != "plain-text" || res.Language != "ar" {
		t.Errorf("result = %+v", res)
	}

	docxPath := filepath.Join(dir, "contract.docx")
	writeTestDocx(t, docxPath, "Employment Agreement dated 15/3/2024")
	res, err = e.Extract(context.Background(), docxPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != "docx-xml" || !strings.Contains(res.Text, "Employment Agreement") {
		t.Errorf("result = %+v", res)
	}
	if res.Language != "en" {
		t.Errorf("language = %q, want en", res.Language)
	}

	if _, err := e.Extract(context.Background(), filepath.Join(dir, "image.png")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestPDFMagicRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor(ExtractorConfig{}, nil)
	if _, err := e.Extract(context.Background(), path); err == nil {
		t.Fatal("expected magic check failure")
	}
}

func TestFSIngestorDirectory(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close(nil) })
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	docs := repository.NewDocumentRepository(db, nil)
	ing := NewFSIngestor(docs, nil)

	root := t.TempDir()
	files := map[string]string{
		"a.txt":       "first document",
		"b.txt":       "second document",
		"copy.txt":    "first document", // same content as a.txt
		"skip.png":    "not a document",
		".hidden.txt": "hidden",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	results, stats, err := ing.IngestDirectory(ctx, root, true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Matched != 3 || stats.Succeeded != 3 || stats.Deduplicated != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	ids := map[string]string{}
	for _, r := range results {
		ids[filepath.Base(r.SourcePath)] = r.DocumentID
	}
	if ids["a.txt"] != ids["copy.txt"] {
		t.Errorf("duplicate content should share a document: %v", ids)
	}
	if ids["a.txt"] == ids["b.txt"] {
		t.Error("distinct content should get distinct documents")
	}

	// The dedup hit must report the path scanned now, not the stored one.
	var dedupPath string
	for _, r := range results {
		if r.Deduplicated {
			dedupPath = filepath.Base(r.SourcePath)
		}
	}
	if dedupPath != "copy.txt" {
		t.Errorf("deduplicated path = %q, want copy.txt", dedupPath)
	}
}

func writeTestDocx(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	doc := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		text + `</w:t></w:r></w:p></w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}
