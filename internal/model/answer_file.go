package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxAnswerFileBytes is the largest answer file a student may submit.
const MaxAnswerFileBytes int64 = 50 * 1024 * 1024

// Sentinel errors for answer file validation.
var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

// AllowedAnswerExtensions lists the accepted answer file extensions.
var AllowedAnswerExtensions = []string{".pdf", ".doc", ".docx"}

// AnswerFile is a file chosen for submission.
type AnswerFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// ValidateAnswerFile checks the extension and size of an answer file.
func ValidateAnswerFile(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, a := range AllowedAnswerExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFile, ext, strings.Join(AllowedAnswerExtensions, ", "))
	}
	if size > MaxAnswerFileBytes {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, size, MaxAnswerFileBytes)
	}
	return nil
}

// AnswerFileFromPath describes a file on disk without reading it.
func AnswerFileFromPath(path string) (AnswerFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return AnswerFile{}, fmt.Errorf("stat answer file: %w", err)
	}
	if info.IsDir() {
		return AnswerFile{}, fmt.Errorf("%s is a directory", path)
	}
	return AnswerFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}
