package pdf

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Extractor pulls plain text out of PDF files via MuPDF.
type Extractor struct {
	log *slog.Logger
}

func NewExtractor(log *slog.Logger) *Extractor {
	return &Extractor{log: log}
}

// Text returns the concatenated text of every page in the document.
func (e *Extractor) Text(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	numPages := doc.NumPage()
	for pageNum := 0; pageNum < numPages; pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", pageNum+1, err)
		}
		sb.WriteString(text)
	}

	if e.log != nil {
		e.log.Info("pdf text extracted", "pages", numPages, "chars", sb.Len())
	}
	return sb.String(), nil
}
