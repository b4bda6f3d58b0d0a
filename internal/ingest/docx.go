package ingest

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"docent/constants"
	"docent/internal/extract"
)

// extractDOCX reads word/document.xml from the OOXML container and pulls the
// text runs. Paragraphs become newlines, tabs and explicit breaks are kept.
func (e *Extractor) extractDOCX(path string) (extract.TextExtractionResult, error) {
	res := extract.TextExtractionResult{Format: constants.DOCX, Method: "docx-xml"}

	r, err := zip.OpenReader(path)
	if err != nil {
		return res, fmt.Errorf("open docx: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			e.logger.Warn("close docx error", "path", path, "error", err)
		}
	}()

	var doc *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return res, fmt.Errorf("docx: word/document.xml not found")
	}
	if int64(doc.UncompressedSize64) > e.cfg.MaxBytes {
		return res, fmt.Errorf("docx: document.xml too large: %d bytes", doc.UncompressedSize64)
	}

	rc, err := doc.Open()
	if err != nil {
		return res, fmt.Errorf("docx: open document.xml: %w", err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			e.logger.Warn("close document.xml error", "path", path, "error", err)
		}
	}()

	text, paragraphs, err := decodeDocumentXML(rc)
	if err != nil {
		return res, err
	}
	res.Text = text
	res.Pages = 1
	if paragraphs == 0 {
		res.Warnings = append(res.Warnings, "docx: no paragraphs found")
	}
	return res, nil
}

func decodeDocumentXML(r io.Reader) (string, int, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	var paragraphs int
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", paragraphs, fmt.Errorf("docx: parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs++
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), paragraphs, nil
}
