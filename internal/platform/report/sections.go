package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Section titles, in document order.
const (
	ReportTitle               = "Consultation Report"
	SectionPatient            = "Patient Information"
	SectionConsultation       = "Consultation Details"
	SectionTranscriptions     = "Transcriptions"
	SectionDiagnosisTreatment = "Diagnosis & Treatment"
	SectionNotes              = "Notes"
)

const (
	dateLayout     = "Jan 2, 2006"
	dateTimeLayout = "Jan 2, 2006 15:04"
	clockLayout    = "15:04:05"
)

// BuildDocument maps the input records into an ordered Document. Empty
// label-value rows are dropped and sections left without content are
// omitted. The result depends only on in and cfg.
func BuildDocument(in Input, cfg Config) (*Document, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sb := sectionBuilder{styles: cfg.Styles, loc: cfg.location()}
	doc := &Document{}

	header := Section{Title: ReportTitle, Blocks: []Block{
		TitleBlock{Text: ReportTitle, Style: sb.styles.Title},
	}}
	if lv, ok := sb.labelValue("Generated by", cfg.GeneratorName); ok {
		header.Blocks = append(header.Blocks, lv)
	}
	doc.Sections = append(doc.Sections, header)

	for _, s := range []Section{
		sb.patientSection(in.Patient),
		sb.consultationSection(in.Consultation),
		sb.transcriptSection(in.Segments),
		sb.diagnosisSection(in.Consultation),
		sb.notesSection(in.Consultation),
	} {
		// The heading alone does not make a section.
		if len(s.Blocks) > 1 {
			doc.Sections = append(doc.Sections, s)
		}
	}
	return doc, nil
}

type sectionBuilder struct {
	styles Styles
	loc    *time.Location
}

func (sb sectionBuilder) heading(title string) Section {
	return Section{Title: title, Blocks: []Block{TitleBlock{Text: title, Style: sb.styles.Heading}}}
}

func (sb sectionBuilder) labelValue(label, value string) (Block, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, false
	}
	return LabelValueBlock{Label: label, Value: value, Style: sb.styles.Label}, true
}

func (sb sectionBuilder) rows(s *Section, pairs ...[2]string) {
	for _, p := range pairs {
		if b, ok := sb.labelValue(p[0], p[1]); ok {
			s.Blocks = append(s.Blocks, b)
		}
	}
}

// captioned adds a small caption followed by a paragraph, or nothing when
// text is blank.
func (sb sectionBuilder) captioned(s *Section, caption, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.Blocks = append(s.Blocks,
		TitleBlock{Text: caption, Style: Style{FontSize: sb.styles.Label.FontSize, Bold: true, SpaceAfter: sb.styles.Label.SpaceAfter}},
		ParagraphBlock{Text: text, Style: sb.styles.Body},
	)
}

func (sb sectionBuilder) patientSection(p *PatientSummary) Section {
	s := sb.heading(SectionPatient)
	sb.rows(&s,
		[2]string{"Name", p.FullName()},
		[2]string{"Medical Record No.", p.MRN},
		[2]string{"Date of Birth", sb.formatDate(p.BirthDate)},
		[2]string{"Gender", titleCase(p.Gender)},
		[2]string{"Phone", p.Phone},
		[2]string{"Email", p.Email},
		[2]string{"Address", p.Address},
	)
	return s
}

func (sb sectionBuilder) consultationSection(c *ConsultationSummary) Section {
	s := sb.heading(SectionConsultation)
	var date, duration string
	if !c.Date.IsZero() {
		date = c.Date.In(sb.loc).Format(dateTimeLayout)
	}
	if c.DurationMinutes > 0 {
		duration = strconv.Itoa(c.DurationMinutes) + " min"
	}
	sb.rows(&s,
		[2]string{"Date", date},
		[2]string{"Type", titleCase(c.Type)},
		[2]string{"Status", titleCase(c.Status)},
		[2]string{"Duration", duration},
		[2]string{"Clinician", c.ClinicianName},
	)
	sb.captioned(&s, "Chief Complaint", c.ChiefComplaint)
	return s
}

func (sb sectionBuilder) transcriptSection(segments []TranscriptSegment) Section {
	s := sb.heading(SectionTranscriptions)
	n := 0
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		n++
		s.Blocks = append(s.Blocks,
			TitleBlock{Text: sb.segmentMeta(n, seg), Style: sb.styles.Meta},
			ParagraphBlock{Text: seg.Text, Style: sb.styles.Body},
		)
	}
	return s
}

func (sb sectionBuilder) segmentMeta(n int, seg TranscriptSegment) string {
	parts := []string{fmt.Sprintf("Segment %d", n)}
	if !seg.Timestamp.IsZero() {
		parts = append(parts, seg.Timestamp.In(sb.loc).Format(clockLayout))
	}
	parts = append(parts,
		fmt.Sprintf("Confidence %.0f%%", seg.Confidence*100),
		fmt.Sprintf("%d words", seg.Words()),
	)
	return strings.Join(parts, " · ")
}

func (sb sectionBuilder) diagnosisSection(c *ConsultationSummary) Section {
	s := sb.heading(SectionDiagnosisTreatment)
	sb.captioned(&s, "Diagnosis", c.Diagnosis)
	sb.captioned(&s, "Treatment Plan", c.TreatmentPlan)
	return s
}

func (sb sectionBuilder) notesSection(c *ConsultationSummary) Section {
	s := sb.heading(SectionNotes)
	if strings.TrimSpace(c.Notes) != "" {
		s.Blocks = append(s.Blocks, ParagraphBlock{Text: c.Notes, Style: sb.styles.Body})
	}
	return s
}

func (sb sectionBuilder) formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	// Birth dates are calendar dates; do not shift them across zones.
	return t.UTC().Format(dateLayout)
}

func titleCase(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}
