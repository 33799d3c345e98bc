package report

import (
	"fmt"
	"strings"
	"time"
)

// PatientSummary is the patient data printed on a report.
type PatientSummary struct {
	ID        string     `json:"id,omitempty"`
	MRN       string     `json:"mrn,omitempty"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Address   string     `json:"address,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (p *PatientSummary) FullName() string {
	return strings.TrimSpace(strings.Join(strings.Fields(p.FirstName+" "+p.LastName), " "))
}

// ConsultationSummary is the consultation data printed on a report.
type ConsultationSummary struct {
	ID              string    `json:"id,omitempty"`
	Date            time.Time `json:"date"`
	Type            string    `json:"type,omitempty"`
	Status          string    `json:"status,omitempty"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	ChiefComplaint  string    `json:"chief_complaint,omitempty"`
	Diagnosis       string    `json:"diagnosis,omitempty"`
	TreatmentPlan   string    `json:"treatment_plan,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	ClinicianID     string    `json:"clinician_id,omitempty"`
	ClinicianName   string    `json:"clinician_name,omitempty"`
}

// TranscriptSegment is one chronological piece of the consultation
// transcript. Confidence is in [0, 1].
type TranscriptSegment struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	WordCount  int       `json:"word_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Words returns WordCount, falling back to counting the text.
func (s TranscriptSegment) Words() int {
	if s.WordCount > 0 {
		return s.WordCount
	}
	return len(strings.Fields(s.Text))
}

// Input is the immutable triple a report is generated from.
type Input struct {
	Patient      *PatientSummary      `json:"patient"`
	Consultation *ConsultationSummary `json:"consultation"`
	Segments     []TranscriptSegment  `json:"segments,omitempty"`
}

// Validate checks only that the mandatory records are present.
func (in Input) Validate() error {
	if in.Patient == nil {
		return fmt.Errorf("%w: patient is required", ErrInput)
	}
	if in.Consultation == nil {
		return fmt.Errorf("%w: consultation is required", ErrInput)
	}
	return nil
}
