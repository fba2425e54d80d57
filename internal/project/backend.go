package project

import (
	"context"
	"fmt"
	"path"
	"strings"

	"collabbot/internal/cerr"
	"collabbot/internal/storage"
)

const projectsPrefix = "projects"

// Record is one persisted project as raw bytes.
type Record struct {
	Key  string
	Data []byte
}

// Backend is durable id -> record storage.
type Backend interface {
	Write(ctx context.Context, id string, data []byte) error
	ReadAll(ctx context.Context) ([]Record, error)
}

// FileBackend keeps one file per project at projects/<id>.<ext>.
type FileBackend struct {
	storage storage.Storage
	ext     string
}

func NewFileBackend(s storage.Storage, ext string) *FileBackend {
	return &FileBackend{storage: s, ext: strings.TrimPrefix(ext, ".")}
}

func (b *FileBackend) path(id string) string {
	return fmt.Sprintf("%s/%s.%s", projectsPrefix, id, b.ext)
}

func (b *FileBackend) Write(ctx context.Context, id string, data []byte) error {
	if strings.ContainsAny(id, `/\`) || id == "" || id == "." || id == ".." {
		return fmt.Errorf("invalid project id %q", id)
	}
	return b.storage.Write(ctx, b.path(id), data)
}

// ReadAll returns every record with this backend's extension. Files with
// other extensions are ignored.
func (b *FileBackend) ReadAll(ctx context.Context) ([]Record, error) {
	paths, err := b.storage.List(ctx, projectsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list project records: %w", err)
	}
	records := make([]Record, 0, len(paths))
	for _, p := range paths {
		if path.Ext(p) != "."+b.ext {
			continue
		}
		data, err := b.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("project record "+p, err)
		}
		records = append(records, Record{Key: p, Data: data})
	}
	return records, nil
}
