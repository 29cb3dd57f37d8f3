package record

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

// NewRepoPG stores each record as a JSONB document in the records table.
// The list columns are kept in step with the document on every write.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const recordCols = `doc`

func scanRecord(row pgx.Row) (*Record, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}

func collect(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *repoPG) Create(ctx context.Context, r *Record) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO records (id, patient_id, patient_name, type, department, admission_date, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.PatientID, r.PatientName, r.Type, r.Department, r.AdmissionDate, doc, r.CreatedAt, r.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (p *repoPG) GetByID(ctx context.Context, id string) (*Record, error) {
	return scanRecord(p.pool.QueryRow(ctx, `SELECT `+recordCols+` FROM records WHERE id = $1`, id))
}

func (p *repoPG) List(ctx context.Context) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+recordCols+` FROM records ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (p *repoPG) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+recordCols+` FROM records WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (p *repoPG) Update(ctx context.Context, id string, fn UpdateFunc) (*Record, error) {
	var updated *Record
	err := db.InTx(ctx, p.pool, func(tx pgx.Tx) error {
		cur, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordCols+` FROM records WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		doc, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE records
			SET patient_name = $2, type = $3, department = $4, admission_date = $5, doc = $6, updated_at = $7
			WHERE id = $1`,
			id, next.PatientName, next.Type, next.Department, next.AdmissionDate, doc, next.UpdatedAt); err != nil {
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

func (p *repoPG) Delete(ctx context.Context, id string) (*Record, error) {
	return scanRecord(p.pool.QueryRow(ctx, `DELETE FROM records WHERE id = $1 RETURNING `+recordCols, id))
}
