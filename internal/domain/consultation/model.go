package consultation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicreport/internal/platform/report"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	MRN       *string    `db:"mrn" json:"mrn,omitempty"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender    *string    `db:"gender" json:"gender,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Address   *string    `db:"address" json:"address,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Consultation maps to the consultation table.
type Consultation struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	Date            time.Time `db:"consultation_date" json:"date"`
	Type            *string   `db:"consultation_type" json:"type,omitempty"`
	Status          string    `db:"status" json:"status"`
	DurationMinutes *int      `db:"duration_minutes" json:"duration_minutes,omitempty"`
	ChiefComplaint  *string   `db:"chief_complaint" json:"chief_complaint,omitempty"`
	Diagnosis       *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	TreatmentPlan   *string   `db:"treatment_plan" json:"treatment_plan,omitempty"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	ClinicianID     *string   `db:"clinician_id" json:"clinician_id,omitempty"`
	ClinicianName   *string   `db:"clinician_name" json:"clinician_name,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TranscriptSegment maps to the transcript_segment table. Seq is assigned on
// append and orders segments recorded at the same instant.
type TranscriptSegment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	Seq            int       `db:"seq" json:"seq"`
	Text           string    `db:"text" json:"text"`
	Confidence     float64   `db:"confidence" json:"confidence"`
	WordCount      int       `db:"word_count" json:"word_count"`
	RecordedAt     time.Time `db:"recorded_at" json:"timestamp"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Consultation statuses.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var validStatuses = map[string]bool{
	StatusScheduled:  true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

var validTypes = map[string]bool{
	"initial":    true,
	"follow_up":  true,
	"urgent":     true,
	"telehealth": true,
}

// ToSummary converts the row into the patient block of a report.
func (p *Patient) ToSummary() *report.PatientSummary {
	return &report.PatientSummary{
		ID:        p.ID.String(),
		MRN:       strVal(p.MRN),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthDate: p.BirthDate,
		Gender:    strVal(p.Gender),
		Phone:     strVal(p.Phone),
		Email:     strVal(p.Email),
		Address:   strVal(p.Address),
	}
}

func (c *Consultation) ToSummary() *report.ConsultationSummary {
	s := &report.ConsultationSummary{
		ID:             c.ID.String(),
		Date:           c.Date,
		Type:           strVal(c.Type),
		Status:         c.Status,
		ChiefComplaint: strVal(c.ChiefComplaint),
		Diagnosis:      strVal(c.Diagnosis),
		TreatmentPlan:  strVal(c.TreatmentPlan),
		Notes:          strVal(c.Notes),
		ClinicianID:    strVal(c.ClinicianID),
		ClinicianName:  strVal(c.ClinicianName),
	}
	if c.DurationMinutes != nil {
		s.DurationMinutes = *c.DurationMinutes
	}
	return s
}

func (s *TranscriptSegment) ToReport() report.TranscriptSegment {
	return report.TranscriptSegment{
		Text:       s.Text,
		Confidence: s.Confidence,
		WordCount:  s.WordCount,
		Timestamp:  s.RecordedAt,
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
