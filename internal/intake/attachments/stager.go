package attachments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kycflow/internal/intake/metrics"
	"kycflow/internal/intake/models"
)

// Uploader stores a binary under dest and returns its stable public URL.
type Uploader interface {
	Upload(ctx context.Context, dest, name, contentType string, body io.Reader) (string, error)
}

// UploadErrors collects per-slot upload failures keyed by dotted slot path.
// A failed slot keeps its pick staged so the next persist retries it.
type UploadErrors map[string]error

func (e UploadErrors) Error() string {
	slots := e.Slots()
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, fmt.Sprintf("%s: %v", s, e[s]))
	}
	return "attachment upload failed: " + strings.Join(parts, "; ")
}

// Slots returns the failed slot paths in sorted order.
func (e UploadErrors) Slots() []string {
	slots := make([]string, 0, len(e))
	for s := range e {
		slots = append(slots, s)
	}
	sort.Strings(slots)
	return slots
}

// State is the lifecycle position of a staged pick.
type State string

const (
	StatePicked    State = "picked"
	StateUploading State = "uploading"
)

type pick struct {
	path  models.Path
	blob  Blob
	gen   uint64
	state State
}

// Stager holds at most one pending pick per slot until a persist uploads it.
type Stager struct {
	mu       sync.Mutex
	pending  map[string]*pick
	gen      uint64
	uploader Uploader
	prefix   string
	limit    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Stager)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Stager) {
		s.metrics = m
	}
}

// WithConcurrency caps parallel uploads.
func WithConcurrency(n int) Option {
	return func(s *Stager) {
		if n > 0 {
			s.limit = n
		}
	}
}

// New builds a stager that uploads under prefix, typically "<role>/<user>".
func New(uploader Uploader, prefix string, opts ...Option) *Stager {
	s := &Stager{
		pending:  make(map[string]*pick),
		uploader: uploader,
		prefix:   prefix,
		limit:    4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StagePick records a pending binary for slot, replacing any earlier pick
// that has not been uploaded yet.
func (s *Stager) StagePick(slot models.Path, blob Blob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.pending[slot.String()] = &pick{path: slot, blob: blob, gen: s.gen, state: StatePicked}
}

// Discard drops the pending pick for slot, if any.
func (s *Stager) Discard(slot models.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, slot.String())
}

// HasPending reports whether any pick awaits upload.
func (s *Stager) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// IsPending reports whether slot has a staged pick.
func (s *Stager) IsPending(slot models.Path) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[slot.String()]
	return ok
}

// State returns the lifecycle state of the pick staged for slot.
func (s *Stager) State(slot models.Path) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[slot.String()]
	if !ok {
		return "", false
	}
	return p.state, true
}

// ResolvePending uploads every staged pick and returns slot -> URL for the
// ones that succeeded. Slots with nothing staged are omitted. Each slot is
// uploaded independently; failures come back as UploadErrors alongside the
// successful URLs.
func (s *Stager) ResolvePending(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	batch := make([]pick, 0, len(s.pending))
	for _, p := range s.pending {
		p.state = StateUploading
		batch = append(batch, *p)
	}
	s.mu.Unlock()

	resolved := make(map[string]string, len(batch))
	if len(batch) == 0 {
		return resolved, nil
	}

	failed := UploadErrors{}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.limit)
	for _, p := range batch {
		g.Go(func() error {
			url, err := s.upload(ctx, p)
			s.metrics.RecordUpload(err)
			mu.Lock()
			defer mu.Unlock()
			key := p.path.String()
			if err != nil {
				failed[key] = err
				return nil
			}
			resolved[key] = url
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	for _, p := range batch {
		key := p.path.String()
		cur, ok := s.pending[key]
		if !ok || cur.gen != p.gen {
			// re-picked or discarded while uploading
			continue
		}
		if _, done := resolved[key]; done {
			delete(s.pending, key)
		} else {
			cur.state = StatePicked
		}
	}
	s.mu.Unlock()

	if len(failed) > 0 {
		s.logWarn(ctx, "attachment uploads failed", "slots", failed.Slots())
		return resolved, failed
	}
	return resolved, nil
}

func (s *Stager) upload(ctx context.Context, p pick) (string, error) {
	body, err := p.blob.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", p.blob.Name(), err)
	}
	defer body.Close()

	dest := path.Join(s.prefix, p.path.String(), uuid.NewString()+path.Ext(p.blob.Name()))
	url, err := s.uploader.Upload(ctx, dest, p.blob.Name(), p.blob.ContentType(), body)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Stager) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}
