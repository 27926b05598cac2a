package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

// Renderer writes summary text into a simple A4 PDF on local storage.
type Renderer struct {
	dir string
}

// NewRenderer creates a renderer that places artifacts in dir, or the system
// temp directory when dir is empty.
func NewRenderer(dir string) *Renderer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Renderer{dir: dir}
}

// RenderSummary renders the text into a uniquely named PDF and returns its
// path. The caller owns the file and must remove it when done.
func (r *Renderer) RenderSummary(text string) (string, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Arial", "", 12)

	// Core fonts only cover latin-1; map what we can and drop the rest.
	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, line := range strings.Split(text, "\n") {
		doc.MultiCell(0, 10, tr(line), "", "L", false)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("summary_%s.pdf", uuid.NewString()))
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write summary pdf: %w", err)
	}
	return path, nil
}
