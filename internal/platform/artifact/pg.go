package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicreport/internal/platform/db"
)

// PGStore keeps documents and their metadata in the report_artifact table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *PGStore) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const metaCols = `id, consultation_id, patient_id, file_name, content_type, size_bytes,
	sha256, pages, generated_at, created_at, created_by`

func (s *PGStore) Save(ctx context.Context, meta Metadata, content []byte) (*Metadata, error) {
	meta, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	consultationID, err := uuid.Parse(meta.ConsultationID)
	if err != nil {
		return nil, fmt.Errorf("invalid consultation id %q: %w", meta.ConsultationID, err)
	}

	id := uuid.New()
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO report_artifact (
			id, consultation_id, patient_id, file_name, content_type, size_bytes,
			sha256, pages, generated_at, created_by, content
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`,
		id, consultationID, meta.PatientID, meta.FileName, meta.ContentType, meta.Size,
		meta.Hash, meta.Pages, meta.GeneratedAt, meta.CreatedBy, content,
	).Scan(&meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report artifact: %w", err)
	}
	meta.ID = id.String()
	return &meta, nil
}

func (s *PGStore) Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, ErrNotFound
	}

	var content []byte
	meta, err := scanMeta(s.conn(ctx).QueryRow(ctx,
		`SELECT `+metaCols+`, content FROM report_artifact WHERE id = $1`, uid), &content)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), meta, nil
}

func (s *PGStore) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return scanMeta(s.conn(ctx).QueryRow(ctx,
		`SELECT `+metaCols+` FROM report_artifact WHERE id = $1`, uid))
}

func (s *PGStore) ListByConsultation(ctx context.Context, consultationID string, limit, offset int) ([]*Metadata, int, error) {
	cid, err := uuid.Parse(consultationID)
	if err != nil {
		return nil, 0, nil
	}

	var total int
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM report_artifact WHERE consultation_id = $1`, cid).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count report artifacts: %w", err)
	}

	query := `SELECT ` + metaCols + ` FROM report_artifact WHERE consultation_id = $1
		ORDER BY created_at DESC, id DESC OFFSET $2`
	args := []interface{}{cid, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list report artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Metadata
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM report_artifact WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete report artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMeta(row pgx.Row, extra ...interface{}) (*Metadata, error) {
	var (
		m                  Metadata
		id, consultationID uuid.UUID
	)
	dest := append([]interface{}{
		&id, &consultationID, &m.PatientID, &m.FileName, &m.ContentType, &m.Size,
		&m.Hash, &m.Pages, &m.GeneratedAt, &m.CreatedAt, &m.CreatedBy,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan report artifact: %w", err)
	}
	m.ID = id.String()
	m.ConsultationID = consultationID.String()
	return &m, nil
}
