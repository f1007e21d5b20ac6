// Package xmlsps is the XML adapter: it reads SciELO PS packages (bare
// XML or a ZIP with one XML member), extracts the normalized document
// facts used for deduplication, and rewrites the three identifier
// elements in place.
package xmlsps

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ReadPackage returns the XML content of a package file: the first .xml
// member when path is a ZIP, the raw file content otherwise.
func ReadPackage(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err == nil {
		defer zr.Close()
		for _, member := range zr.File {
			if !strings.HasSuffix(member.Name, ".xml") {
				continue
			}
			rc, err := member.Open()
			if err != nil {
				return "", fmt.Errorf("read %s from %s: %w", member.Name, path, err)
			}
			defer rc.Close()
			content, err := io.ReadAll(rc)
			if err != nil {
				return "", fmt.Errorf("read %s from %s: %w", member.Name, path, err)
			}
			return string(content), nil
		}
		return "", fmt.Errorf("no .xml member in %s", path)
	}
	if !errors.Is(err, zip.ErrFormat) {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	// Not a ZIP: treat as a bare XML file.
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(content), nil
}

// CreateZipPackage writes content as the single .xml member of a new
// ZIP at path, creating parent directories as needed.
func CreateZipPackage(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".xml"
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip member %s: %w", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return fmt.Errorf("write zip member %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip %s: %w", path, err)
	}
	return nil
}

// TempPackageDir creates a fresh scratch directory for one task's ZIP
// files. The returned cleanup removes it and everything inside.
func TempPackageDir() (string, func(), error) {
	dir, err := os.MkdirTemp("", "xmlsps-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
