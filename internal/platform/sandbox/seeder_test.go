package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicreport/internal/domain/consultation"
)

var (
	testUntil             = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	consultationPatientID = uuid.MustParse("6f1c2b0e-3a4d-4e5f-8a9b-0c1d2e3f4a5b")
)

func newTarget() *consultation.Service {
	return consultation.NewService(consultation.NewMemoryRepo())
}

func TestDataGenerator_Patient(t *testing.T) {
	p := NewDataGenerator(42).Patient()
	if p.FirstName == "" || p.LastName == "" {
		t.Errorf("expected a full name, got %q %q", p.FirstName, p.LastName)
	}
	if p.MRN == nil || !strings.HasPrefix(*p.MRN, "MRN-") {
		t.Errorf("unexpected MRN %v", p.MRN)
	}
	if p.Gender == nil || (*p.Gender != "male" && *p.Gender != "female") {
		t.Errorf("unexpected gender %v", p.Gender)
	}
	if p.BirthDate == nil || p.BirthDate.Year() < 1940 || p.BirthDate.Year() > 2010 {
		t.Errorf("birth date out of range: %v", p.BirthDate)
	}
	if p.Email == nil || !strings.HasSuffix(*p.Email, "@example.org") {
		t.Errorf("unexpected email %v", p.Email)
	}
}

func TestDataGenerator_Reproducible(t *testing.T) {
	a, b := NewDataGenerator(7), NewDataGenerator(7)
	for i := 0; i < 5; i++ {
		pa, pb := a.Patient(), b.Patient()
		if pa.FirstName != pb.FirstName || pa.LastName != pb.LastName || *pa.MRN != *pb.MRN {
			t.Fatalf("patient %d differs: %s %s vs %s %s", i, pa.FirstName, pa.LastName, pb.FirstName, pb.LastName)
		}
		ca, _ := a.Consultation(pa.ID, testUntil)
		cb, _ := b.Consultation(pb.ID, testUntil)
		if !ca.Date.Equal(cb.Date) || *ca.Diagnosis != *cb.Diagnosis {
			t.Fatalf("consultation %d differs", i)
		}
	}
}

func TestDataGenerator_UniqueMRNs(t *testing.T) {
	g := NewDataGenerator(1)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		mrn := *g.Patient().MRN
		if seen[mrn] {
			t.Fatalf("duplicate MRN %s", mrn)
		}
		seen[mrn] = true
	}
}

func TestDataGenerator_ConsultationWithinYear(t *testing.T) {
	g := NewDataGenerator(3)
	earliest := testUntil.AddDate(-1, 0, -1)
	for i := 0; i < 50; i++ {
		c, dialogue := g.Consultation(consultationPatientID, testUntil)
		if c.Date.After(testUntil) || c.Date.Before(earliest) {
			t.Errorf("date %v outside the year before %v", c.Date, testUntil)
		}
		if c.Status != consultation.StatusCompleted {
			t.Errorf("expected completed, got %s", c.Status)
		}
		if c.ChiefComplaint == nil || c.Diagnosis == nil || c.TreatmentPlan == nil {
			t.Error("expected clinical content")
		}
		if len(dialogue) == 0 {
			t.Error("expected dialogue")
		}
	}
}

func TestDataGenerator_Segments(t *testing.T) {
	g := NewDataGenerator(5)
	start := testUntil
	dialogue := []string{"first line here", "second"}
	segs := g.Segments(consultationPatientID, start, dialogue, 5)
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(segs))
	}
	if segs[2].Text != "first line here" || segs[2].WordCount != 3 {
		t.Errorf("expected dialogue to wrap, got %q (%d words)", segs[2].Text, segs[2].WordCount)
	}
	if !segs[0].RecordedAt.Equal(start) {
		t.Errorf("first segment at %v, want %v", segs[0].RecordedAt, start)
	}
	for i := 1; i < len(segs); i++ {
		if !segs[i].RecordedAt.After(segs[i-1].RecordedAt) {
			t.Errorf("segment %d not after segment %d", i, i-1)
		}
	}
	for _, s := range segs {
		if s.Confidence < 0.75 || s.Confidence > 0.99 {
			t.Errorf("confidence %v out of range", s.Confidence)
		}
	}
}

func TestSeeder_Generate(t *testing.T) {
	svc := newTarget()
	cfg := SeedConfig{Patients: 3, ConsultationsPerPatient: 2, SegmentsPerConsultation: 4, Seed: 11, Until: testUntil}

	result, err := NewSeeder(svc, cfg).Generate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Patients != 3 || result.Consultations != 6 || result.Segments != 24 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if len(result.ConsultationIDs) != 6 {
		t.Fatalf("expected 6 consultation ids, got %d", len(result.ConsultationIDs))
	}

	for _, id := range result.ConsultationIDs {
		segs, err := svc.ListSegments(context.Background(), id)
		if err != nil {
			t.Fatalf("list segments: %v", err)
		}
		if len(segs) != 4 {
			t.Errorf("consultation %s: expected 4 segments, got %d", id, len(segs))
		}
	}

	in, err := svc.FetchReportInput(context.Background(), result.ConsultationIDs[0].String())
	if err != nil {
		t.Fatalf("seeded consultation should be reportable: %v", err)
	}
	if in.Patient == nil || in.Consultation == nil || len(in.Segments) != 4 {
		t.Errorf("incomplete report input: %+v", in)
	}
}

func TestSeeder_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  SeedConfig
	}{
		{"negative patients", SeedConfig{Patients: -1}},
		{"negative segments", SeedConfig{Patients: 1, SegmentsPerConsultation: -2}},
		{"too many patients", SeedConfig{Patients: maxPatients + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSeeder(newTarget(), tt.cfg).Generate(context.Background()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

type failingTarget struct {
	*consultation.Service
}

func (failingTarget) AppendSegment(context.Context, *consultation.TranscriptSegment) error {
	return errors.New("disk full")
}

func TestSeeder_Generate_PartialOnFailure(t *testing.T) {
	cfg := SeedConfig{Patients: 2, ConsultationsPerPatient: 1, SegmentsPerConsultation: 1, Seed: 2, Until: testUntil}
	result, err := NewSeeder(failingTarget{newTarget()}, cfg).Generate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected append failure, got %v", err)
	}
	if result.Patients != 1 || result.Consultations != 1 || result.Segments != 0 {
		t.Errorf("unexpected partial counts: %+v", result)
	}
}

func TestSeedHandler_Seed(t *testing.T) {
	e := echo.New()
	h := NewSeedHandler(newTarget(), zerolog.Nop())

	body := `{"patients":2,"consultations_per_patient":1,"segments_per_consultation":3,"seed":9}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.Seed(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Patients != 2 || result.Consultations != 2 || result.Segments != 6 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSeedHandler_Defaults(t *testing.T) {
	e := echo.New()
	h := NewSeedHandler(newTarget(), zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", nil)
	rec := httptest.NewRecorder()

	if err := h.Seed(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result SeedResult
	_ = json.Unmarshal(rec.Body.Bytes(), &result)
	def := DefaultSeedConfig()
	if result.Patients != def.Patients {
		t.Errorf("expected %d default patients, got %d", def.Patients, result.Patients)
	}
}

func TestSeedHandler_Invalid(t *testing.T) {
	e := echo.New()
	h := NewSeedHandler(newTarget(), zerolog.Nop())

	for _, body := range []string{`{"patients":-3}`, `{"patients":`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		err := h.Seed(e.NewContext(req, httptest.NewRecorder()))
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %v", body, err)
		}
	}
}

func TestSeedHandler_RequiresAdmin(t *testing.T) {
	e := echo.New()
	NewSeedHandler(newTarget(), zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without roles, got %d", rec.Code)
	}
}
