// Package blob stores uploaded attachments on an afero filesystem and serves
// them back at stable public URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	// ErrTooLarge is returned by Put when the body exceeds the size limit.
	ErrTooLarge = errors.New("blob exceeds size limit")
	// ErrInvalidKey is returned for keys that are empty, absolute or escape
	// the store root.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store writes blobs under root on fs. Keys are slash-separated relative
// paths.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root. Pass afero.NewOsFs() in production
// and afero.NewMemMapFs() in tests.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// CleanKey normalizes key and rejects anything that would land outside the
// store.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// Put streams body to key, refusing more than maxBytes (0 means no limit).
// The blob becomes visible only once fully written.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, maxBytes int64) (int64, error) {
	key, err := CleanKey(key)
	if err != nil {
		return 0, err
	}
	final := path.Join(s.root, key)
	if err := s.fs.MkdirAll(path.Dir(final), 0o755); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}

	tmp := final + ".part-" + uuid.NewString()
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}

	src := body
	if maxBytes > 0 {
		src = io.LimitReader(body, maxBytes+1)
	}
	n, copyErr := io.Copy(f, contextReader{ctx: ctx, r: src})
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("write blob: %w", copyErr)
	case closeErr != nil:
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("close blob: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		_ = s.fs.Remove(tmp)
		return 0, ErrTooLarge
	}

	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("publish blob: %w", err)
	}
	return n, nil
}

// Handler serves stored blobs by key relative to the request path. Mount
// it behind http.StripPrefix. Directories and partial writes are not served.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := CleanKey(strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil || strings.Contains(path.Base(key), ".part-") {
			http.NotFound(w, r)
			return
		}
		f, err := s.fs.Open(path.Join(s.root, key))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
