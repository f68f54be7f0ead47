package profile

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractResumePDF reads a PDF resume from disk and returns its plain text,
// suitable for the resume_text profile field.
func ExtractResumePDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening resume %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("resume %s contains no extractable text", path)
	}
	return out, nil
}
