package document_parsing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var ErrNoText = errors.New("no text could be extracted from the document")

// PDFToText returns the text of each page prefixed with its page number.
// Pages with no text are skipped.
func PDFToText(contents []byte) (string, error) {
	doc, err := fitz.NewFromMemory(contents)
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("failed to read text from page %d: %w", i+1, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, fmt.Sprintf("[Page %d]\n%s", i+1, text))
		}
	}

	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n\n"), nil
}
