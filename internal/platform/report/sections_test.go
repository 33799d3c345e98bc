package report

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func sectionTitles(doc *Document) []string {
	var titles []string
	for _, s := range doc.Sections {
		titles = append(titles, s.Title)
	}
	return titles
}

func blockTexts(s Section) []string {
	var out []string
	for _, b := range s.Blocks {
		switch b := b.(type) {
		case TitleBlock:
			out = append(out, b.Text)
		case LabelValueBlock:
			out = append(out, b.Text())
		case ParagraphBlock:
			out = append(out, b.Text)
		}
	}
	return out
}

func TestBuildDocument_MissingRecords(t *testing.T) {
	in := testInput()
	in.Patient = nil
	if _, err := BuildDocument(in, DefaultConfig()); !errors.Is(err, ErrInput) {
		t.Errorf("expected ErrInput for missing patient, got %v", err)
	}

	in = testInput()
	in.Consultation = nil
	if _, err := BuildDocument(in, DefaultConfig()); !errors.Is(err, ErrInput) {
		t.Errorf("expected ErrInput for missing consultation, got %v", err)
	}
}

// No transcript and no notes: only header, patient, consultation and
// diagnosis sections are emitted.
func TestBuildDocument_NoTranscriptNoNotes(t *testing.T) {
	doc, err := BuildDocument(testInput(), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{ReportTitle, SectionPatient, SectionConsultation, SectionDiagnosisTreatment}
	got := sectionTitles(doc)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected sections %v, got %v", want, got)
	}
	for _, b := range doc.Blocks() {
		if tb, ok := b.(TitleBlock); ok && (tb.Text == SectionTranscriptions || tb.Text == SectionNotes) {
			t.Errorf("unexpected %q heading", tb.Text)
		}
	}
}

func TestBuildDocument_AllSections(t *testing.T) {
	in := testInput()
	in.Consultation.Notes = "Return in two weeks if symptoms persist."
	in.Segments = []TranscriptSegment{
		{Text: "How long have the headaches lasted?", Confidence: 0.97, Timestamp: testTime()},
		{Text: "About two weeks.", Confidence: 0.912, WordCount: 3, Timestamp: testTime().Add(5 * time.Second)},
	}
	doc, err := BuildDocument(in, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ReportTitle, SectionPatient, SectionConsultation, SectionTranscriptions, SectionDiagnosisTreatment, SectionNotes}
	if got := sectionTitles(doc); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected sections %v, got %v", want, got)
	}

	tr, _ := doc.Section(SectionTranscriptions)
	texts := blockTexts(tr)
	wantTexts := []string{
		SectionTranscriptions,
		"Segment 1 · 15:04:05 · Confidence 97% · 6 words",
		"How long have the headaches lasted?",
		"Segment 2 · 15:04:10 · Confidence 91% · 3 words",
		"About two weeks.",
	}
	if strings.Join(texts, "|") != strings.Join(wantTexts, "|") {
		t.Errorf("unexpected transcript blocks:\n got %q\nwant %q", texts, wantTexts)
	}
	if _, ok := tr.Blocks[2].(ParagraphBlock); !ok {
		t.Errorf("expected segment text as a paragraph, got %T", tr.Blocks[2])
	}
}

func TestBuildDocument_SkipsBlankSegments(t *testing.T) {
	in := testInput()
	in.Segments = []TranscriptSegment{{Text: "   "}, {Text: "Hello there.", Confidence: 1}}
	doc, err := BuildDocument(in, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	tr, ok := doc.Section(SectionTranscriptions)
	if !ok {
		t.Fatal("expected a transcriptions section")
	}
	if len(tr.Blocks) != 3 || !strings.HasPrefix(blockTexts(tr)[1], "Segment 1 · ") {
		t.Errorf("expected only the non-blank segment, got %q", blockTexts(tr))
	}

	in.Segments = []TranscriptSegment{{Text: ""}}
	doc, _ = BuildDocument(in, DefaultConfig())
	if _, ok := doc.Section(SectionTranscriptions); ok {
		t.Error("expected no transcriptions section when all segments are blank")
	}
}

func TestBuildDocument_PatientRows(t *testing.T) {
	doc, err := BuildDocument(testInput(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := doc.Section(SectionPatient)
	got := strings.Join(blockTexts(p), "|")
	want := strings.Join([]string{
		SectionPatient,
		"Name: Ada Lovelace",
		"Medical Record No.: MRN-0042",
		"Date of Birth: Jul 1, 1980",
		"Gender: Female",
		"Phone: +1 555 0100",
	}, "|")
	if got != want {
		t.Errorf("unexpected patient rows:\n got %s\nwant %s", got, want)
	}
}

func TestBuildDocument_ConsultationRows(t *testing.T) {
	doc, err := BuildDocument(testInput(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c, _ := doc.Section(SectionConsultation)
	got := blockTexts(c)
	want := []string{
		SectionConsultation,
		"Date: Mar 14, 2024 14:00",
		"Type: Follow Up",
		"Status: Completed",
		"Duration: 25 min",
		"Clinician: Dr. Grace Hopper",
		"Chief Complaint",
		"Intermittent headaches for two weeks.",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected consultation rows:\n got %q\nwant %q", got, want)
	}
}

func TestBuildDocument_EmptyFieldsDropped(t *testing.T) {
	in := Input{
		Patient:      &PatientSummary{FirstName: "Ada"},
		Consultation: &ConsultationSummary{ID: "c-1"},
	}
	doc, err := BuildDocument(in, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ReportTitle, SectionPatient}
	if got := sectionTitles(doc); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}
	p, _ := doc.Section(SectionPatient)
	if len(p.Blocks) != 2 {
		t.Errorf("expected heading and name only, got %q", blockTexts(p))
	}
}

func TestBuildDocument_HeaderAlwaysPresent(t *testing.T) {
	in := Input{Patient: &PatientSummary{}, Consultation: &ConsultationSummary{}}
	doc, err := BuildDocument(in, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Title != ReportTitle {
		t.Fatalf("expected only the header section, got %v", sectionTitles(doc))
	}
	texts := blockTexts(doc.Sections[0])
	if texts[1] != "Generated by: Clinic Report Service" {
		t.Errorf("unexpected header rows %q", texts)
	}
}

func TestBuildDocument_UsesConfiguredZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("EST", -5*3600)
	doc, err := BuildDocument(testInput(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := doc.Section(SectionConsultation)
	if got := blockTexts(c)[1]; got != "Date: Mar 14, 2024 09:00" {
		t.Errorf("expected consultation date in the configured zone, got %q", got)
	}
	p, _ := doc.Section(SectionPatient)
	if got := blockTexts(p)[3]; got != "Date of Birth: Jul 1, 1980" {
		t.Errorf("birth date must not shift across zones, got %q", got)
	}
}

func TestBuildDocument_StylesAreExplicit(t *testing.T) {
	cfg := DefaultConfig()
	in := testInput()
	in.Consultation.Notes = "n"
	doc, err := BuildDocument(in, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range doc.Blocks() {
		var s Style
		switch b := b.(type) {
		case TitleBlock:
			s = b.Style
		case LabelValueBlock:
			s = b.Style
		case ParagraphBlock:
			s = b.Style
			if s != cfg.Styles.Body {
				t.Errorf("paragraph %q not in body style", b.Text)
			}
		}
		if s.FontSize <= 0 {
			t.Errorf("block %#v has no font size", b)
		}
	}
	if tb := doc.Sections[0].Blocks[0].(TitleBlock); tb.Style != cfg.Styles.Title {
		t.Errorf("expected report title in title style, got %+v", tb.Style)
	}
}
