package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	MaxEntries    = 2000
	MaxEntryBytes = 50 << 20
	MaxTotalBytes = 512 << 20
)

// Limits bounds what an archive may expand to. Sizes count uncompressed
// bytes actually read, not the sizes the zip headers claim.
type Limits struct {
	Entries    int
	EntryBytes int64
	TotalBytes int64
}

var DefaultLimits = Limits{
	Entries:    MaxEntries,
	EntryBytes: MaxEntryBytes,
	TotalBytes: MaxTotalBytes,
}

var (
	ErrNotArchive = errors.New("archive: not a zip file")
	ErrNoImages   = errors.New("archive: no images found")
	ErrTooLarge   = errors.New("archive: contents too large")
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type File struct {
	// Name is the base name of the entry, used when building storage keys.
	Name string
	// Path is the full entry path inside the archive.
	Path string
	Data []byte
}

func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

func skipEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return true
	}
	name := f.Name
	base := path.Base(name)
	if strings.Contains(name, "__MACOSX") || base == ".DS_Store" || strings.HasPrefix(base, "._") {
		return true
	}
	return !IsImage(base)
}

// ExtractOrderedImages returns the image entries of a zip archive in natural
// filename order.
func ExtractOrderedImages(data []byte) ([]File, error) {
	return Extract(data, DefaultLimits)
}

// Extract is ExtractOrderedImages with explicit limits.
func Extract(data []byte, limits Limits) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}

	files := make([]File, 0, min(len(zr.File), limits.Entries))
	remaining := limits.TotalBytes
	for _, f := range zr.File {
		if skipEntry(f) {
			continue
		}
		if len(files) >= limits.Entries {
			return nil, fmt.Errorf("archive: more than %d images", limits.Entries)
		}

		b, err := readEntry(f, min(limits.EntryBytes, remaining))
		if err != nil {
			return nil, err
		}
		remaining -= int64(len(b))
		files = append(files, File{Name: path.Base(f.Name), Path: f.Name, Data: b})
	}

	if len(files) == 0 {
		return nil, ErrNoImages
	}

	SortFiles(files)
	return files, nil
}

// readEntry reads f, failing once more than limit bytes come out.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", f.Name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", f.Name, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
	}
	return b, nil
}
