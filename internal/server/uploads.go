package server

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
)

// saveUploads writes each uploaded file into dir under a unique prefix.
func saveUploads(headers []*multipart.FileHeader, dir string) ([]preprocess.FileInput, error) {
	files := make([]preprocess.FileInput, 0, len(headers))
	for _, h := range headers {
		name := filepath.Base(filepath.Clean("/" + h.Filename))
		dest := filepath.Join(dir, uuid.NewString()+"_"+name)

		size, err := saveUpload(h, dest)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", h.Filename, err)
		}
		files = append(files, preprocess.FileInput{
			FileID:    uuid.NewString(),
			Name:      h.Filename,
			Path:      dest,
			SizeBytes: size,
			FileType:  preprocess.DetectFileType(h.Filename),
		})
	}
	return files, nil
}

func saveUpload(h *multipart.FileHeader, dest string) (int64, error) {
	src, err := h.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// expandArchives replaces every .zip upload with its members. When no
// archive yields any member the original list is returned unchanged.
func expandArchives(files []preprocess.FileInput, dir string, maxMemberBytes int64, logger *slog.Logger) []preprocess.FileInput {
	var expanded []preprocess.FileInput
	for _, f := range files {
		if !preprocess.IsZip(f.Name) {
			expanded = append(expanded, f)
			continue
		}
		logger.Info("expanding zip", "file", f.Name)
		members, err := preprocess.ExpandZip(f.Path, f.Name, dir, maxMemberBytes)
		if err != nil {
			logger.Warn("failed to expand zip", "file", f.Name, "error", err)
		}
		expanded = append(expanded, members...)
	}
	if len(expanded) == 0 {
		return files
	}
	return expanded
}
