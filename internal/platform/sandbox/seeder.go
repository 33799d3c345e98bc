// Package sandbox generates synthetic patients, consultations and
// transcripts for demo and development environments. Output is
// reproducible for a given seed.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicreport/internal/domain/consultation"
	"github.com/ehr/clinicreport/internal/platform/auth"
)

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	Patients                int       `json:"patients"`
	ConsultationsPerPatient int       `json:"consultations_per_patient"`
	SegmentsPerConsultation int       `json:"segments_per_consultation"`
	Seed                    int64     `json:"seed"`
	// Until is the latest consultation date. Zero means now.
	Until time.Time `json:"until"`
}

const maxPatients = 500

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Patients:                10,
		ConsultationsPerPatient: 2,
		SegmentsPerConsultation: 6,
	}
}

func (c SeedConfig) validate() error {
	switch {
	case c.Patients < 0 || c.ConsultationsPerPatient < 0 || c.SegmentsPerConsultation < 0:
		return fmt.Errorf("seed counts must not be negative")
	case c.Patients > maxPatients:
		return fmt.Errorf("at most %d patients per seed run", maxPatients)
	}
	return nil
}

// Target receives generated records. *consultation.Service satisfies it.
type Target interface {
	CreatePatient(ctx context.Context, p *consultation.Patient) error
	CreateConsultation(ctx context.Context, c *consultation.Consultation) error
	AppendSegment(ctx context.Context, seg *consultation.TranscriptSegment) error
}

var (
	maleFirstNames   = []string{"James", "Robert", "Michael", "David", "Daniel", "Thomas", "Samuel", "Omar", "Luis", "Kenji"}
	femaleFirstNames = []string{"Mary", "Patricia", "Jennifer", "Linda", "Sarah", "Amina", "Sofia", "Grace", "Mei", "Hannah"}
	lastNames        = []string{"Smith", "Johnson", "Williams", "Brown", "Garcia", "Martinez", "Nguyen", "Okafor", "Müller", "Kowalski", "Haddad", "Tanaka"}
	streets          = []string{"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Elm St", "Park Blvd", "Lake Rd", "Hill St"}
	cities           = []string{"Springfield", "Riverside", "Fairview", "Greenville", "Madison", "Georgetown"}

	clinicians = []struct{ id, name string }{
		{"clin-001", "Dr. Elena Park"},
		{"clin-002", "Dr. Marcus Reed"},
		{"clin-003", "Dr. Priya Raman"},
		{"clin-004", "Dr. Jonas Weber"},
	}

	consultationTypes = []string{"initial", "follow_up", "urgent", "telehealth"}

	// Each case keeps complaint, diagnosis, plan and dialogue consistent.
	cases = []clinicalCase{
		{
			complaint: "Persistent dry cough for three weeks",
			diagnosis: "Post-viral cough",
			plan:      "Honey and warm fluids, dextromethorphan at night. Return if fever or shortness of breath develops.",
			dialogue: []string{
				"What brings you in today?",
				"I have had this dry cough for about three weeks now, it started after a cold.",
				"Any fever, chest pain or trouble breathing?",
				"No fever. It is worse at night and keeps me awake.",
				"Your lungs sound clear and your oxygen saturation is normal.",
				"This looks like a post-viral cough, which can linger for several weeks.",
				"We will try a cough suppressant at night and see how you do over the next two weeks.",
			},
		},
		{
			complaint: "Lower back pain after lifting",
			diagnosis: "Acute lumbar strain",
			plan:      "Ibuprofen 400 mg three times daily with food for five days, gentle stretching, physiotherapy referral if not improved in two weeks.",
			dialogue: []string{
				"Tell me about the back pain.",
				"It started two days ago when I lifted a heavy box at work.",
				"Does the pain travel down your legs, or any numbness or tingling?",
				"No, it stays in my lower back but it is hard to bend.",
				"Straight leg raise is negative and reflexes are normal.",
				"This is consistent with a muscle strain rather than a disc problem.",
				"Keep moving gently, avoid heavy lifting for a couple of weeks.",
			},
		},
		{
			complaint: "Elevated home blood pressure readings",
			diagnosis: "Essential hypertension",
			plan:      "Start amlodipine 5 mg daily. Reduce salt intake. Home readings twice daily and review in four weeks.",
			dialogue: []string{
				"You mentioned your home readings have been high.",
				"Yes, mostly around 150 over 95 in the mornings.",
				"Any headaches, chest pain or changes in vision?",
				"Just some headaches now and then.",
				"Today in clinic it is 152 over 96 on both arms.",
				"Given repeated readings I would recommend starting a low dose medication.",
				"Let us also look at salt in your diet and check kidney function with a blood test.",
			},
		},
		{
			complaint: "Itchy rash on both forearms",
			diagnosis: "Contact dermatitis",
			plan:      "Hydrocortisone 1% cream twice daily for one week. Avoid the new detergent. Emollients after washing.",
			dialogue: []string{
				"When did the rash appear?",
				"About five days ago, right after I switched laundry detergent.",
				"Is it spreading anywhere else?",
				"Only on my forearms where my sleeves touch.",
				"The pattern fits a reaction to something that touched the skin.",
				"Stop the new detergent and use a mild steroid cream for a week.",
			},
		},
		{
			complaint: "Follow-up of type 2 diabetes",
			diagnosis: "Type 2 diabetes mellitus, well controlled",
			plan:      "Continue metformin 1000 mg twice daily. HbA1c and foot examination in three months.",
			dialogue: []string{
				"How have your sugar readings been since the last visit?",
				"Mostly between six and eight in the mornings.",
				"Any low readings, or feeling shaky or sweaty?",
				"No, nothing like that.",
				"Your latest HbA1c is 6.8 percent, which is a good result.",
				"Feet look healthy with normal sensation.",
				"We will keep the same dose of metformin and recheck in three months.",
			},
		},
		{
			complaint: "Sore throat and fever",
			diagnosis: "Acute viral pharyngitis",
			plan:      "Paracetamol for fever and pain, saline gargles, fluids. No antibiotics indicated.",
			dialogue: []string{
				"How long have you had the sore throat?",
				"Since yesterday morning, and I had a temperature of 38.2 last night.",
				"Any cough or runny nose?",
				"Yes, a runny nose and a slight cough.",
				"Your tonsils are a little red but there is no pus and the glands are not swollen.",
				"With the cough and runny nose this is most likely viral.",
			},
		},
	}
)

type clinicalCase struct {
	complaint string
	diagnosis string
	plan      string
	dialogue  []string
}

// DataGenerator produces deterministic synthetic clinic records.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomDate(minYear, maxYear int) time.Time {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := time.Month(1 + g.rng.Intn(12))
	d := 1 + g.rng.Intn(28) // safe for all months
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("(%03d) %03d-%04d",
		200+g.rng.Intn(800),
		200+g.rng.Intn(800),
		g.rng.Intn(10000),
	)
}

func (g *DataGenerator) Patient() *consultation.Patient {
	g.counter++
	gender := "female"
	first := g.pick(femaleFirstNames)
	if g.rng.Intn(2) == 0 {
		gender = "male"
		first = g.pick(maleFirstNames)
	}
	last := g.pick(lastNames)
	birth := g.randomDate(1940, 2010)
	mrn := fmt.Sprintf("MRN-%06d-%04d", g.rng.Intn(1000000), g.counter)
	phone := g.randomPhone()
	email := strings.ToLower(fmt.Sprintf("%s.%s%d@example.org", first, last, g.counter))
	address := fmt.Sprintf("%d %s, %s", 1+g.rng.Intn(9999), g.pick(streets), g.pick(cities))

	return &consultation.Patient{
		MRN:       &mrn,
		FirstName: first,
		LastName:  last,
		BirthDate: &birth,
		Gender:    &gender,
		Phone:     &phone,
		Email:     &email,
		Address:   &address,
	}
}

// Consultation returns a completed consultation for patientID dated within
// the year before until, along with the dialogue it should be transcribed
// from.
func (g *DataGenerator) Consultation(patientID uuid.UUID, until time.Time) (*consultation.Consultation, []string) {
	cc := cases[g.rng.Intn(len(cases))]
	clin := clinicians[g.rng.Intn(len(clinicians))]
	date := until.Add(-time.Duration(g.rng.Intn(365*24)) * time.Hour).Truncate(time.Minute).UTC()
	typ := g.pick(consultationTypes)
	duration := 10 + 5*g.rng.Intn(6)
	complaint, diagnosis, plan := cc.complaint, cc.diagnosis, cc.plan
	clinID, clinName := clin.id, clin.name

	return &consultation.Consultation{
		PatientID:       patientID,
		Date:            date,
		Type:            &typ,
		Status:          consultation.StatusCompleted,
		DurationMinutes: &duration,
		ChiefComplaint:  &complaint,
		Diagnosis:       &diagnosis,
		TreatmentPlan:   &plan,
		ClinicianID:     &clinID,
		ClinicianName:   &clinName,
	}, cc.dialogue
}

// Segments splits dialogue into n transcript segments starting at start.
// Lines are reused in order when n exceeds the dialogue length.
func (g *DataGenerator) Segments(consultationID uuid.UUID, start time.Time, dialogue []string, n int) []*consultation.TranscriptSegment {
	segs := make([]*consultation.TranscriptSegment, 0, n)
	at := start
	for i := 0; i < n; i++ {
		text := dialogue[i%len(dialogue)]
		segs = append(segs, &consultation.TranscriptSegment{
			ConsultationID: consultationID,
			Text:           text,
			Confidence:     float64(75+g.rng.Intn(25)) / 100,
			WordCount:      len(strings.Fields(text)),
			RecordedAt:     at,
		})
		at = at.Add(time.Duration(20+g.rng.Intn(40)) * time.Second)
	}
	return segs
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Patients        int           `json:"patients"`
	Consultations   int           `json:"consultations"`
	Segments        int           `json:"segments"`
	ConsultationIDs []uuid.UUID   `json:"consultation_ids"`
	Duration        time.Duration `json:"duration_ns"`
}

type Seeder struct {
	target Target
	config SeedConfig
}

func NewSeeder(target Target, config SeedConfig) *Seeder {
	return &Seeder{target: target, config: config}
}

// Generate writes all records to the target. Records written before a
// failure stay in place.
func (s *Seeder) Generate(ctx context.Context) (*SeedResult, error) {
	if err := s.config.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	until := s.config.Until
	if until.IsZero() {
		until = start.UTC()
	}

	gen := NewDataGenerator(s.config.Seed)
	result := &SeedResult{}

	for i := 0; i < s.config.Patients; i++ {
		p := gen.Patient()
		if err := s.target.CreatePatient(ctx, p); err != nil {
			return result, fmt.Errorf("create patient: %w", err)
		}
		result.Patients++

		for j := 0; j < s.config.ConsultationsPerPatient; j++ {
			c, dialogue := gen.Consultation(p.ID, until)
			if err := s.target.CreateConsultation(ctx, c); err != nil {
				return result, fmt.Errorf("create consultation: %w", err)
			}
			result.Consultations++
			result.ConsultationIDs = append(result.ConsultationIDs, c.ID)

			for _, seg := range gen.Segments(c.ID, c.Date, dialogue, s.config.SegmentsPerConsultation) {
				if err := s.target.AppendSegment(ctx, seg); err != nil {
					return result, fmt.Errorf("append segment: %w", err)
				}
				result.Segments++
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// SeedHandler exposes seeding over HTTP for development deployments.
type SeedHandler struct {
	target Target
	logger zerolog.Logger
	mu     sync.Mutex
}

func NewSeedHandler(target Target, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{target: target, logger: logger}
}

func (h *SeedHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sandbox", auth.RequireRole(auth.RoleAdmin))
	g.POST("/seed", h.Seed)
}

func (h *SeedHandler) Seed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if err := cfg.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := NewSeeder(h.target, cfg).Generate(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Int("patients", result.Patients).Msg("sandbox seed failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "seed failed")
	}
	h.logger.Info().
		Int("patients", result.Patients).
		Int("consultations", result.Consultations).
		Int("segments", result.Segments).
		Msg("sandbox seeded")
	return c.JSON(http.StatusCreated, result)
}
