package attachments

import (
	"bytes"
	"io"
	"mime"
	"path/filepath"

	"github.com/spf13/afero"
)

// Blob is a locally picked binary that has not been uploaded yet. It is the
// transient local handle of a pick.
type Blob interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

// FileBlob reads a pick from a filesystem. A nil Fs means the OS filesystem.
type FileBlob struct {
	Fs   afero.Fs
	Path string
}

func (f FileBlob) Name() string { return filepath.Base(f.Path) }

func (f FileBlob) ContentType() string {
	if ct := mime.TypeByExtension(filepath.Ext(f.Path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (f FileBlob) Open() (io.ReadCloser, error) {
	fs := f.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return fs.Open(f.Path)
}

// BytesBlob holds a pick in memory.
type BytesBlob struct {
	Filename string
	Type     string
	Data     []byte
}

func (b BytesBlob) Name() string { return b.Filename }

func (b BytesBlob) ContentType() string { return b.Type }

func (b BytesBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}
