package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hsba/emr/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG stores each patient as a JSONB document in the patients table.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p Patient
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode patient: %w", err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO patients (id, full_name, cccd, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.FullName, p.CCCD, doc, p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT doc FROM patients WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM patients ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, id string, fn UpdateFunc) (*Patient, error) {
	var updated *Patient
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := scanPatient(tx.QueryRow(ctx, `SELECT doc FROM patients WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		doc, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode patient: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE patients SET full_name = $2, cccd = $3, doc = $4, updated_at = $5
			WHERE id = $1`,
			id, next.FullName, next.CCCD, doc, next.UpdatedAt); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
