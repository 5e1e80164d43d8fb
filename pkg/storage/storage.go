package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"gato-backoffice/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage", fx.Provide(New))

//go:generate mockgen -source=storage.go -destination=mock/storage.go -package=mock

// ObjectStore is the blob store holding covers, pages and workflow artifacts.
type ObjectStore interface {
	// Put writes data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// DeleteMany removes keys. Missing keys are not an error.
	DeleteMany(ctx context.Context, keys []string) error
	// KeyFromURL maps a public URL produced by Put back to its key.
	KeyFromURL(url string) (string, bool)
}

func New(cfg *config.Config) (ObjectStore, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "s3", "r2":
		return NewS3Store(context.Background(), cfg)
	case "memory":
		zap.L().Warn("using in-memory object storage, uploads are lost on restart")
		return NewMemoryStore(cfg.Storage.PublicURL), nil
	case "minio", "":
		return NewMinioStore(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

type urlMapper struct {
	base string
}

func newURLMapper(base string) urlMapper {
	return urlMapper{base: strings.TrimRight(base, "/")}
}

func (m urlMapper) URL(key string) string {
	return m.base + "/" + strings.TrimLeft(key, "/")
}

func (m urlMapper) KeyFromURL(url string) (string, bool) {
	prefix := m.base + "/"
	if m.base == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".zip":  "application/zip",
	".cbz":  "application/zip",
	".pdf":  "application/pdf",
	".txt":  "text/plain; charset=utf-8",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// KeysFromURLs maps every URL that belongs to store; foreign URLs are skipped.
func KeysFromURLs(store ObjectStore, urls ...string) []string {
	keys := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if key, ok := store.KeyFromURL(u); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Blob is an uploaded file held in memory until it is written.
type Blob struct {
	Name string
	Data []byte
}

// ReadBlob reads a multipart upload into memory.
func ReadBlob(fh *multipart.FileHeader) (*Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &Blob{Name: path.Base(fh.Filename), Data: data}, nil
}

// TimestampedKey builds prefix/{unix millis}-{name} with name reduced to a
// safe base name.
func TimestampedKey(prefix string, at time.Time, name string) string {
	return fmt.Sprintf("%s/%d-%s", strings.TrimRight(prefix, "/"), at.UnixMilli(), SafeName(name))
}

// SafeName keeps letters, digits, dots, dashes and underscores of the base
// name and replaces everything else with a dash.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
}
