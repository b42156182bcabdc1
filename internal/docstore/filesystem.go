// Package docstore is the filesystem document store: one folder per period
// under a root directory, e.g. <root>/03-2025/30111222.pdf.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"recibos/internal/catalog"
	"recibos/pkg/platform/sentinel"
)

// Filesystem implements catalog.DocumentStore over a directory tree.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: root}
}

// Find walks the tree for files named exactly name. Refs are slash-separated
// paths relative to the root; Folder is the immediate parent directory.
func (f *Filesystem) Find(ctx context.Context, name string) ([]catalog.File, error) {
	var found []catalog.File
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || d.Name() != name {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		found = append(found, catalog.File{
			Ref:    filepath.ToSlash(rel),
			Folder: filepath.Base(filepath.Dir(path)),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("document root %s: %w: %w", f.root, sentinel.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("walk document root: %w", err)
	}
	return found, nil
}

// Open rejects refs that escape the root.
func (f *Filesystem) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(ref)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("document ref %q: %w", ref, sentinel.ErrNotFound)
	}
	file, err := os.Open(filepath.Join(f.root, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("document ref %q: %w", ref, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("open document: %w", err)
	}
	return file, nil
}
