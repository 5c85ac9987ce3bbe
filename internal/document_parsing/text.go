package document_parsing

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true, ".xml": true,
	".html": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".cfg": true, ".log": true, ".rtf": true,
}

// ExtractText returns the plain text of an uploaded document. The file type
// is taken from the extension of filename.
func ExtractText(filename string, contents []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case ext == ".pdf":
		return PDFToText(contents)
	case ext == ".docx" || ext == ".doc":
		return "", fmt.Errorf("%w: %s (convert to pdf or txt)", ErrUnsupportedFile, filename)
	case textExtensions[ext]:
		return decodeText(contents)
	default:
		if utf8.Valid(contents) {
			return string(contents), nil
		}
		return "", fmt.Errorf("%w: %s appears to be binary", ErrUnsupportedFile, filename)
	}
}

// decodeText reads contents as UTF-8, falling back to Latin-1.
func decodeText(contents []byte) (string, error) {
	if utf8.Valid(contents) {
		return string(contents), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(contents)
	if err != nil {
		return "", fmt.Errorf("could not decode text file: %w", err)
	}
	return string(decoded), nil
}
