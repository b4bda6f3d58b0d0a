package ingest

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"docent/constants"
	"docent/internal/extract"
)

// extractText reads a plain-text file. Arabic documents saved on Windows are
// frequently Windows-1256 or ISO 8859-6 rather than UTF-8, so decoding falls
// through those in order.
func (e *Extractor) extractText(path string) (extract.TextExtractionResult, error) {
	res := extract.TextExtractionResult{Format: constants.TXT, Method: "plain-text", Pages: 1}

	st, err := os.Stat(path)
	if err != nil {
		return res, err
	}
	if st.Size() > e.cfg.MaxBytes {
		return res, fmt.Errorf("file too large: %d bytes", st.Size())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}

	text, encoding, err := decodeText(raw)
	if err != nil {
		return res, err
	}
	if encoding != "utf-8" {
		res.Warnings = append(res.Warnings, "decoded as "+encoding)
	}
	res.Text = text
	return res, nil
}

func decodeText(raw []byte) (string, string, error) {
	// UTF-16 BOMs first; ExpectBOM consumes the marker.
	if len(raw) >= 2 && (bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF})) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", "", fmt.Errorf("decode utf-16: %w", err)
		}
		return string(out), "utf-16", nil
	}

	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}

	for _, cm := range []struct {
		name string
		enc  *charmap.Charmap
	}{
		{"windows-1256", charmap.Windows1256},
		{"iso-8859-6", charmap.ISO8859_6},
	} {
		out, err := cm.enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(out) {
			return string(out), cm.name, nil
		}
	}
	return "", "", fmt.Errorf("undecodable text encoding")
}
