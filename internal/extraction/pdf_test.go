package extraction

import "testing"

func TestPDFPageTextsRejectsGarbage(t *testing.T) {
	if _, err := pdfPageTexts([]byte("not a pdf at all")); err == nil {
		t.Fatalf("expected an error for non-PDF bytes")
	}
}

func TestPDFPageTextsRejectsEmptyInput(t *testing.T) {
	if _, err := pdfPageTexts(nil); err == nil {
		t.Fatalf("expected an error for empty input")
	}
}
