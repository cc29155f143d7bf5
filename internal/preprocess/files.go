package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/perfsight/internal/progress"
)

// File types reported for uploaded artifacts.
const (
	FileTypeLog      = "log"
	FileTypeCSV      = "csv"
	FileTypeJMX      = "jmx"
	FileTypeJSON     = "json"
	FileTypeMarkdown = "markdown"
	FileTypeText     = "text"
	FileTypeUnknown  = "unknown"
)

// FileInput describes one artifact to preprocess.
type FileInput struct {
	FileID    string `json:"file_id,omitempty"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	FileType  string `json:"file_type,omitempty"`
	SourceZip string `json:"source_zip,omitempty"`
}

// DisplayName returns Name, or the base name of Path when Name is empty.
func (f FileInput) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

// Type returns FileType, detecting it from the path or name when unset.
func (f FileInput) Type() string {
	if f.FileType != "" {
		return f.FileType
	}
	if t := DetectFileType(f.Path); t != FileTypeUnknown {
		return t
	}
	return DetectFileType(f.Name)
}

// Specs converts inputs into the file list a progress job is created with.
func Specs(files []FileInput) []progress.FileSpec {
	specs := make([]progress.FileSpec, len(files))
	for i, f := range files {
		specs[i] = progress.FileSpec{
			FileID:    f.FileID,
			Name:      f.DisplayName(),
			FileType:  f.Type(),
			SizeBytes: f.SizeBytes,
			SourceZip: f.SourceZip,
		}
	}
	return specs
}

// DetectFileType maps a file name's extension to a content category.
func DetectFileType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".log":
		return FileTypeLog
	case ".csv":
		return FileTypeCSV
	case ".jmx":
		return FileTypeJMX
	case ".json":
		return FileTypeJSON
	case ".md", ".markdown":
		return FileTypeMarkdown
	case ".txt":
		return FileTypeText
	default:
		return FileTypeUnknown
	}
}

// ReadFile reads path as text, dropping invalid UTF-8 bytes.
// totalLines is the newline count plus one for non-empty content, 0 otherwise.
func ReadFile(path string) (content string, totalLines int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read file: %w", err)
	}
	content = strings.ToValidUTF8(string(data), "")
	if content == "" {
		return "", 0, nil
	}
	return content, strings.Count(content, "\n") + 1, nil
}
