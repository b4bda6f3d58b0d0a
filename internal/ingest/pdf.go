package ingest

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"docent/constants"
	"docent/internal/extract"
)

var rePdfinfoPages = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// extractPDF shells out to poppler. The %PDF magic is checked up front so a
// mislabeled file fails with a clear error instead of garbage output.
func (e *Extractor) extractPDF(ctx context.Context, path string) (extract.TextExtractionResult, error) {
	res := extract.TextExtractionResult{Format: constants.PDF, Method: "pdf-text"}

	if err := e.checkPDFMagic(path); err != nil {
		return res, err
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		res.Warnings = append(res.Warnings, string(errb))
		return res, fmt.Errorf("pdftotext: %w", err)
	}
	res.Text = string(out)
	// A form-feed \f is used as page separator by default.
	res.Pages = 1 + strings.Count(res.Text, "\f")
	return res, nil
}

// PageCount asks pdfinfo, useful for rejecting oversized documents before
// the full text run.
func (e *Extractor) PageCount(ctx context.Context, path string) (int, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdfinfo, path)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w (%s)", err, truncate(string(errb), 256))
	}
	m := rePdfinfoPages.FindStringSubmatch(string(out))
	if len(m) != 2 {
		return 0, fmt.Errorf("pdfinfo: pages not found")
	}
	return strconv.Atoi(m[1])
}

func (e *Extractor) checkPDFMagic(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.Size() > e.cfg.MaxBytes {
		return fmt.Errorf("file too large: %d bytes", st.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("close file error", "path", path, "error", err)
		}
	}()

	magic := make([]byte, 5)
	if _, err := f.Read(magic); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(magic) != "%PDF-" {
		return fmt.Errorf("not a PDF file: %q", path)
	}
	return nil
}
