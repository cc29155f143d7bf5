package preprocess

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// IsZip reports whether name looks like a zip archive.
func IsZip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// ExpandZip extracts regular members of the archive at path into a fresh
// directory below dir. Members that would escape it are skipped. Members
// extracted before an error are still returned.
func ExpandZip(path, sourceName, dir string, maxMemberBytes int64) ([]FileInput, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	root := filepath.Join(dir, uuid.NewString())
	var out []FileInput
	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(root, member.Name)
		if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			continue
		}
		size, err := extractMember(member, dest, maxMemberBytes)
		if err != nil {
			return out, fmt.Errorf("extract %s: %w", member.Name, err)
		}
		out = append(out, FileInput{
			FileID:    uuid.NewString(),
			Name:      member.Name,
			Path:      dest,
			SizeBytes: size,
			FileType:  DetectFileType(member.Name),
			SourceZip: sourceName,
		})
	}
	return out, nil
}

func extractMember(member *zip.File, dest string, maxBytes int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	src, err := member.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxBytes {
		err = fmt.Errorf("member exceeds %d bytes", maxBytes)
	}
	return n, err
}

// CollectFiles walks root and returns every regular file below it, named by
// its slash-separated path relative to root. A root that is itself a file
// yields that file alone.
func CollectFiles(root string) ([]FileInput, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []FileInput{newLocalInput(filepath.Base(root), root, info.Size())}, nil
	}

	var files []FileInput
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, newLocalInput(filepath.ToSlash(rel), path, info.Size()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func newLocalInput(name, path string, size int64) FileInput {
	return FileInput{
		FileID:    uuid.NewString(),
		Name:      name,
		Path:      path,
		SizeBytes: size,
		FileType:  DetectFileType(name),
	}
}
