// Package storage keeps uploaded issue photos and resolution proofs.
package storage

//go:generate mockgen -source=imagestore.go -destination=mocks/mock_imagestore.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageStore saves an uploaded file under a folder and returns the path the
// API serves it from.
type ImageStore interface {
	Save(ctx context.Context, folder string, file *multipart.FileHeader) (string, error)
	Delete(ctx context.Context, path string) error
}

// LocalImageStore writes files below Root and serves them under URLPrefix.
type LocalImageStore struct {
	Root      string
	URLPrefix string
}

func NewLocalImageStore(root, urlPrefix string) *LocalImageStore {
	return &LocalImageStore{Root: root, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

func (s *LocalImageStore) Save(ctx context.Context, folder string, file *multipart.FileHeader) (string, error) {
	if file == nil {
		return "", errors.New("no file provided")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.Root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path.Join(s.URLPrefix, folder, name), nil
}

func (s *LocalImageStore) Delete(_ context.Context, p string) error {
	rel := strings.TrimPrefix(p, s.URLPrefix)
	err := os.Remove(filepath.Join(s.Root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
