package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps blobs in the blobs table.
type PGStore struct {
	pool    *pgxpool.Pool
	maxSize int64
}

func NewPGStore(pool *pgxpool.Pool, maxSize int64) *PGStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &PGStore{pool: pool, maxSize: maxSize}
}

func (s *PGStore) Put(ctx context.Context, meta Meta, content io.Reader) (*Meta, error) {
	data, err := readChecked(&meta, content, s.maxSize)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO blobs (id, record_id, file_name, content_type, hash, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		meta.ID, meta.RecordID, meta.FileName, meta.ContentType, meta.Hash, data, meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	out := meta
	return &out, nil
}

func (s *PGStore) Open(ctx context.Context, id string) (io.ReadCloser, *Meta, error) {
	meta := Meta{ID: id}
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record_id, file_name, content_type, hash, data, created_at FROM blobs WHERE id = $1`, id,
	).Scan(&meta.RecordID, &meta.FileName, &meta.ContentType, &meta.Hash, &data, &meta.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("select blob: %w", err)
	}
	meta.Size = int64(len(data))
	return io.NopCloser(bytes.NewReader(data)), &meta, nil
}

func (s *PGStore) Revoke(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}
