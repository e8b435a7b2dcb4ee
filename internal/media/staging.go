package media

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Stager keeps captured photos on local disk until they are uploaded.
type Stager struct {
	dir string
}

func NewStager(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stager{dir: dir}, nil
}

// Stage writes r under the job's staging folder and returns the local URI.
func (s *Stager) Stage(jobID, photoID, contentType string, r io.Reader) (string, error) {
	dir := filepath.Join(s.dir, filepath.Base(jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job staging dir: %w", err)
	}

	name := filepath.Join(dir, filepath.Base(photoID)+extension(contentType))
	f, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return name, nil
}

// Open opens a staged photo. Only files inside the staging dir are served.
func (s *Stager) Open(localURI string) (*os.File, error) {
	if !s.contains(localURI) {
		return nil, ErrNotStaged
	}
	f, err := os.Open(localURI)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotStaged
	}
	return f, err
}

// Remove deletes a staged photo; a missing file is not an error.
func (s *Stager) Remove(localURI string) error {
	if !s.contains(localURI) {
		return ErrNotStaged
	}
	if err := os.Remove(localURI); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Stager) contains(p string) bool {
	rel, err := filepath.Rel(s.dir, p)
	return err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/heic":
		return ".heic"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
