// Package blobstore holds the bytes of record attachments. A blob lives
// until it is revoked; revocation happens when its document is removed or
// replaced and when the owning record is deleted.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// DefaultMaxFileSize is used when a store is built with a non-positive limit.
const DefaultMaxFileSize = 20 * 1024 * 1024

// AllowedContentTypes lists what may be attached to a record.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Meta describes a stored blob.
type Meta struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	RecordID    string    `json:"recordId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is implemented by the memory and Postgres backends.
type Store interface {
	Put(ctx context.Context, meta Meta, content io.Reader) (*Meta, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Meta, error)
	Revoke(ctx context.Context, id string) error
}

// URL is the API path a document uses to reference a blob.
func URL(recordID, docID string) string {
	return "/api/v1/records/" + url.PathEscape(recordID) + "/documents/" + url.PathEscape(docID) + "/file"
}

// readChecked validates meta and reads content, enforcing maxSize. It fills
// ID, Size, Hash and CreatedAt.
func readChecked(meta *Meta, content io.Reader, maxSize int64) ([]byte, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.NewString()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()
	return data, nil
}

type storedBlob struct {
	meta Meta
	data []byte
}

// MemoryStore keeps blobs in process memory. Its contents are dropped on
// Close, matching the lifetime of the memory backend.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

func NewMemoryStore(maxSize int64) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &MemoryStore{blobs: make(map[string]*storedBlob), maxSize: maxSize}
}

func (s *MemoryStore) Put(_ context.Context, meta Meta, content io.Reader) (*Meta, error) {
	data, err := readChecked(&meta, content, s.maxSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{meta: meta, data: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *Meta, error) {
	s.mu.RLock()
	b, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := b.meta
	return io.NopCloser(bytes.NewReader(b.data)), &meta, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// Len reports the number of live blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Close revokes everything.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	s.blobs = make(map[string]*storedBlob)
	s.mu.Unlock()
}

// RevokeAll revokes each id, ignoring blobs that are already gone. The
// first other error is returned after every id has been attempted.
func RevokeAll(ctx context.Context, s Store, ids ...string) error {
	var first error
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := s.Revoke(ctx, id); err != nil && !errors.Is(err, ErrBlobNotFound) && first == nil {
			first = fmt.Errorf("revoke blob %s: %w", id, err)
		}
	}
	return first
}

// Serve streams blob id as an attachment named fileName, or as the stored
// file name when fileName is empty.
func Serve(c echo.Context, s Store, id, fileName string) error {
	rc, meta, err := s.Open(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	if fileName == "" {
		fileName = meta.FileName
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, fileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
