package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicreport/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// Postgres error codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func mapPGError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}

// -- Patients --

const patientCols = `id, mrn, first_name, last_name, birth_date, gender, phone, email, address,
	created_at, updated_at`

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, mrn, first_name, last_name, birth_date, gender, phone, email, address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.Phone, p.Email, p.Address,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapPGError(err)
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id).Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.Phone, &p.Email, &p.Address,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &p, nil
}

// -- Consultations --

const consultationCols = `id, patient_id, consultation_date, consultation_type, status, duration_minutes,
	chief_complaint, diagnosis, treatment_plan, notes, clinician_id, clinician_name,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsultation(row rowScanner) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.PatientID, &c.Date, &c.Type, &c.Status, &c.DurationMinutes,
		&c.ChiefComplaint, &c.Diagnosis, &c.TreatmentPlan, &c.Notes, &c.ClinicianID, &c.ClinicianName,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &c, nil
}

func (r *repoPG) CreateConsultation(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation (
			id, patient_id, consultation_date, consultation_type, status, duration_minutes,
			chief_complaint, diagnosis, treatment_plan, notes, clinician_id, clinician_name
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.Date, c.Type, c.Status, c.DurationMinutes,
		c.ChiefComplaint, c.Diagnosis, c.TreatmentPlan, c.Notes, c.ClinicianID, c.ClinicianName,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapPGError(err)
}

func (r *repoPG) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+` FROM consultation WHERE id = $1`, id))
}

func (r *repoPG) UpdateConsultation(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consultation SET
			consultation_date=$2, consultation_type=$3, status=$4, duration_minutes=$5,
			chief_complaint=$6, diagnosis=$7, treatment_plan=$8, notes=$9,
			clinician_id=$10, clinician_name=$11, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Date, c.Type, c.Status, c.DurationMinutes,
		c.ChiefComplaint, c.Diagnosis, c.TreatmentPlan, c.Notes,
		c.ClinicianID, c.ClinicianName,
	).Scan(&c.UpdatedAt)
	return mapPGError(err)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+consultationCols+` FROM consultation
		WHERE patient_id = $1 ORDER BY consultation_date DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// -- Transcript segments --

func (r *repoPG) AppendSegment(ctx context.Context, s *TranscriptSegment) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO transcript_segment (id, consultation_id, seq, text, confidence, word_count, recorded_at)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6
		FROM transcript_segment WHERE consultation_id = $2
		RETURNING seq, created_at`,
		s.ID, s.ConsultationID, s.Text, s.Confidence, s.WordCount, s.RecordedAt,
	).Scan(&s.Seq, &s.CreatedAt)
	return mapPGError(err)
}

func (r *repoPG) ListSegments(ctx context.Context, consultationID uuid.UUID) ([]*TranscriptSegment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, seq, text, confidence, word_count, recorded_at, created_at
		FROM transcript_segment WHERE consultation_id = $1
		ORDER BY recorded_at, seq`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TranscriptSegment
	for rows.Next() {
		var s TranscriptSegment
		if err := rows.Scan(&s.ID, &s.ConsultationID, &s.Seq, &s.Text, &s.Confidence,
			&s.WordCount, &s.RecordedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
