package snapshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// DiskSink writes snapshots as PNG files below a root directory.
type DiskSink struct {
	root string
}

func NewDiskSink(root string) (*DiskSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &DiskSink{root: root}, nil
}

// Save writes img to root/name, creating the label directory on demand.
func (d *DiskSink) Save(name string, img image.Image) error {
	path := filepath.Join(d.root, filepath.FromSlash(name))
	if rel, err := filepath.Rel(d.root, path); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("snapshot name %q escapes %s", name, d.root)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("PNG encode failed: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", err)
	}
	return os.Rename(tmp, path)
}
