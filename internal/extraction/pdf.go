package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfPageTexts returns the text of each page with blank pages dropped.
// Pages that fail to decode are skipped; an empty slice means the file has
// no extractable text at all.
func pdfPageTexts(data []byte) (_ []string, err error) {
	defer func() {
		// The pdf package panics on some malformed files.
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf open: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf open: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
