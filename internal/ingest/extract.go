package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// MaxDocumentBytes caps the size of an ingested tender.
const MaxDocumentBytes = 10 << 20

var (
	// ErrEmptyDocument is returned for files with no text.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrDocumentTooLarge is returned for files above MaxDocumentBytes.
	ErrDocumentTooLarge = errors.New("document too large")

	// ErrNotText is returned for files that are not valid UTF-8.
	ErrNotText = errors.New("document is not utf-8 text")
)

var supported = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// UnsupportedFormatError rejects a document by its extension.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported document format: no extension"
	}
	return "unsupported document format " + e.Ext
}

// Supported reports whether name has an extension ExtractText can read.
func Supported(name string) bool {
	return supported[strings.ToLower(filepath.Ext(name))]
}

// ExtractText reads the text of a plain text or markdown document.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supported[ext] {
		return "", &UnsupportedFormatError{Ext: ext}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxDocumentBytes {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrDocumentTooLarge, filepath.Base(path), info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrNotText, filepath.Base(path))
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, filepath.Base(path))
	}
	return text, nil
}

// Load builds a start request from the document at path.
func Load(path, ownerID string) (orchestrator.StartInput, error) {
	text, err := ExtractText(path)
	if err != nil {
		return orchestrator.StartInput{}, err
	}
	return orchestrator.StartInput{
		OwnerID:  ownerID,
		Content:  text,
		Filename: filepath.Base(path),
	}, nil
}

// ValidateInput rejects start requests whose filename names an unsupported
// format. Requests without a filename carry inline text and pass.
func ValidateInput(in orchestrator.StartInput) error {
	if in.Filename == "" || Supported(in.Filename) {
		return nil
	}
	return &UnsupportedFormatError{Ext: strings.ToLower(filepath.Ext(in.Filename))}
}
