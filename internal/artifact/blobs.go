package artifact

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Blobs is byte storage for uploaded sources and final artifacts. Refs are
// opaque handles; only this package interprets them.
type Blobs interface {
	Put(name string, data []byte) (ref string, err error)
	Open(ref string) (io.ReadCloser, error)
	Remove(ref string) error
}

// FSBlobs stores blobs as files under a root directory. The ref is the
// file's path relative to the root.
type FSBlobs struct {
	root   string
	logger *slog.Logger
}

func NewFSBlobs(root string, logger *slog.Logger) (*FSBlobs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSBlobs{root: root, logger: logger}, nil
}

func (b *FSBlobs) Put(name string, data []byte) (string, error) {
	ref := filepath.Base(name)
	if ref == "" || ref == "." || ref == string(filepath.Separator) {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	path := filepath.Join(b.root, ref)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	b.logger.Debug("blob written", "ref", ref, "bytes", len(data))
	return ref, nil
}

func (b *FSBlobs) Open(ref string) (io.ReadCloser, error) {
	if strings.Contains(ref, "..") {
		return nil, fmt.Errorf("invalid blob ref %q", ref)
	}
	f, err := os.Open(filepath.Join(b.root, ref))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (b *FSBlobs) Remove(ref string) error {
	if strings.Contains(ref, "..") {
		return fmt.Errorf("invalid blob ref %q", ref)
	}
	err := os.Remove(filepath.Join(b.root, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}
