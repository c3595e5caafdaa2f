package report

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/unidoc/unioffice/color"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/measurement"
)

// =============================================================================
// DOCX Generator
// =============================================================================

// DOCXGenerator generates DOCX reports from session data.
type DOCXGenerator struct{}

// NewDOCXGenerator creates a new DOCX generator.
func NewDOCXGenerator() *DOCXGenerator {
	return &DOCXGenerator{}
}

// Format returns the output format of this generator.
func (g *DOCXGenerator) Format() domain.ReportFormat {
	return domain.ReportFormatDOCX
}

// Generate creates a DOCX report and writes it to the provided writer.
func (g *DOCXGenerator) Generate(ctx context.Context, data *domain.ReportData, w io.Writer) (int64, error) {
	doc := document.New()
	defer doc.Close()

	// Set document properties
	props := doc.CoreProperties
	props.SetTitle("Coaching Session Report - " + data.SessionTitle)
	props.SetAuthor(data.CoachName)

	// Generate report sections
	g.addCoverSection(doc, data)
	g.addSessionOverview(doc, data)
	if data.Analysis != nil {
		g.addAnalysis(doc, data)
	}
	if data.HasTranscript() {
		g.addTranscriptAppendix(doc, data)
	}

	// Write to buffer to count bytes
	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return 0, fmt.Errorf("docx save error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// Cover Section
// =============================================================================

func (g *DOCXGenerator) addCoverSection(doc *document.Document, data *domain.ReportData) {
	// Main title
	title := doc.AddParagraph()
	titleRun := title.AddRun()
	titleRun.Properties().SetBold(true)
	titleRun.Properties().SetSize(32 * measurement.Point)
	titleRun.Properties().SetColor(color.RGB(59, 74, 140)) // Indigo
	titleRun.AddText("Coaching Session Report")
	title.Properties().SetSpacing(0, 20*measurement.Point)

	// Session title
	subtitle := doc.AddParagraph()
	subtitleRun := subtitle.AddRun()
	subtitleRun.Properties().SetSize(14 * measurement.Point)
	subtitleRun.AddText(data.SessionTitle)

	// Session block
	g.addLabeledSection(doc, "SESSION", func() {
		g.addTextLine(doc, FormatDate(data.SessionDate), false)
		g.addTextLine(doc, "Duration: "+FormatDuration(data.DurationMinutes), false)
	})

	// Coach information
	g.addLabeledSection(doc, "COACH", func() {
		if data.CoachName != "" {
			g.addTextLine(doc, data.CoachName, false)
		}
		if data.PracticeName != "" {
			g.addTextLine(doc, data.PracticeName, false)
		}
	})

	// Client information
	if data.ClientName != "" {
		g.addLabeledSection(doc, "CLIENT", func() {
			g.addTextLine(doc, data.ClientName, false)
			if data.ClientGoals != "" {
				g.addTextLine(doc, "Goals: "+data.ClientGoals, true)
			}
		})
	}

	// Page break
	doc.AddParagraph().AddRun().AddPageBreak()
}

// =============================================================================
// Session Overview
// =============================================================================

func (g *DOCXGenerator) addSessionOverview(doc *document.Document, data *domain.ReportData) {
	g.addSectionHeader(doc, "Session Overview")

	g.addLabelValue(doc, "Date", FormatDate(data.SessionDate))
	g.addLabelValue(doc, "Duration", FormatDuration(data.DurationMinutes))
	if data.ClientName != "" {
		g.addLabelValue(doc, "Client", data.ClientName)
	}

	// Talk time table, only when a transcript exists
	if len(data.TalkRatioByRole) > 0 {
		g.addSubsectionHeader(doc, "Talk Time")

		table := doc.AddTable()
		table.Properties().SetWidthPercent(60)

		headerRow := table.AddRow()
		g.addTableCell(headerRow, "Speaker", true, "")
		g.addTableCell(headerRow, "Share", true, "")

		for _, role := range talkRatioRoles {
			ratio, ok := data.TalkRatioByRole[role]
			if !ok {
				continue
			}
			row := table.AddRow()
			g.addTableCell(row, RoleLabel(role), false, RoleColor(role))
			g.addTableCell(row, FormatPercent(ratio), false, "")
		}

		doc.AddParagraph() // Spacing
	}

	// Coach notes
	if data.Notes != "" {
		g.addSubsectionHeader(doc, "Session Notes")
		g.addTextLine(doc, data.Notes, false)
	}

	doc.AddParagraph().AddRun().AddPageBreak()
}

// =============================================================================
// Analysis Section
// =============================================================================

func (g *DOCXGenerator) addAnalysis(doc *document.Document, data *domain.ReportData) {
	analysis := data.Analysis

	g.addSectionHeader(doc, "Session Analysis")

	// Summary
	if analysis.Summary != "" {
		g.addSubsectionHeader(doc, "Summary")
		g.addTextLine(doc, analysis.Summary, false)
	}

	// Key topics
	if len(analysis.KeyTopics) > 0 {
		g.addSubsectionHeader(doc, "Key Topics")
		for _, topic := range analysis.KeyTopics {
			g.addTextLine(doc, "- "+TitleLabel(topic), false)
		}
	}

	// Highlights
	if len(analysis.Highlights) > 0 {
		g.addSubsectionHeader(doc, "Notable Moments")
		for i, moment := range analysis.Highlights {
			g.addMoment(doc, moment, i+1)

			if i < len(analysis.Highlights)-1 {
				sep := doc.AddParagraph()
				sep.Properties().SetSpacing(10*measurement.Point, 10*measurement.Point)
				sepRun := sep.AddRun()
				sepRun.Properties().SetColor(color.LightGray)
				sepRun.AddText("────────────────────────────────────────")
			}
		}
	}

	// Suggested follow-up questions
	if len(analysis.SuggestedQuestions) > 0 {
		g.addSubsectionHeader(doc, "Suggested Follow-up Questions")
		for _, q := range analysis.SuggestedQuestions {
			g.addTextLine(doc, "- "+q, false)
		}
	}

	doc.AddParagraph().AddRun().AddPageBreak()
}

func (g *DOCXGenerator) addMoment(doc *document.Document, moment domain.AnalysisMoment, number int) {
	// Moment header
	header := doc.AddParagraph()
	headerRun := header.AddRun()
	headerRun.Properties().SetBold(true)
	headerRun.Properties().SetSize(12 * measurement.Point)
	text := fmt.Sprintf("#%d  %s", number, TitleLabel(moment.Label))
	if moment.StartMs > 0 {
		text += "  [" + FormatTimestamp(moment.StartMs) + "]"
	}
	headerRun.AddText(text)

	// Quote
	if moment.Quote != "" {
		quote := doc.AddParagraph()
		quoteRun := quote.AddRun()
		quoteRun.Properties().SetItalic(true)
		quoteRun.Properties().SetColor(color.Gray)
		quoteRun.AddText("\"" + moment.Quote + "\"")
	}

	// Comment
	if moment.Comment != "" {
		g.addTextLine(doc, moment.Comment, false)
	}
}

// =============================================================================
// Transcript Appendix
// =============================================================================

func (g *DOCXGenerator) addTranscriptAppendix(doc *document.Document, data *domain.ReportData) {
	g.addSectionHeader(doc, "Appendix: Transcript")

	for _, seg := range data.Segments {
		role := seg.SpeakerRole
		if !role.IsValid() {
			role = domain.SpeakerRoleUnassigned
		}

		// Timestamp and speaker line
		speakerPara := doc.AddParagraph()
		speakerRun := speakerPara.AddRun()
		speakerRun.Properties().SetBold(true)
		speakerRun.Properties().SetSize(9 * measurement.Point)
		r, g_, b := HexToRGB(RoleColor(role))
		speakerRun.Properties().SetColor(color.RGB(uint8(r), uint8(g_), uint8(b)))
		speaker := RoleLabel(role)
		if role == domain.SpeakerRoleUnassigned && seg.SpeakerLabel != "" {
			speaker = "Speaker " + seg.SpeakerLabel
		}
		speakerRun.AddText(FormatTimestamp(seg.StartMs) + "  " + speaker)
		speakerPara.Properties().SetSpacing(6*measurement.Point, 0)

		// Utterance text
		textPara := doc.AddParagraph()
		textRun := textPara.AddRun()
		textRun.Properties().SetSize(9 * measurement.Point)
		textRun.AddText(seg.Text)
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

func (g *DOCXGenerator) addSectionHeader(doc *document.Document, title string) {
	para := doc.AddParagraph()
	run := para.AddRun()
	run.Properties().SetBold(true)
	run.Properties().SetSize(18 * measurement.Point)
	run.Properties().SetColor(color.RGB(59, 74, 140)) // Indigo
	run.AddText(title)
	para.Properties().SetSpacing(0, 12*measurement.Point)

	// Add underline effect with a second paragraph
	underline := doc.AddParagraph()
	underlineRun := underline.AddRun()
	underlineRun.Properties().SetColor(color.RGB(59, 74, 140))
	underlineRun.AddText("══════════════════════════════════════════════════")
	underline.Properties().SetSpacing(0, 12*measurement.Point)
}

func (g *DOCXGenerator) addSubsectionHeader(doc *document.Document, title string) {
	para := doc.AddParagraph()
	run := para.AddRun()
	run.Properties().SetBold(true)
	run.Properties().SetSize(12 * measurement.Point)
	run.AddText(title)
	para.Properties().SetSpacing(12*measurement.Point, 6*measurement.Point)
}

func (g *DOCXGenerator) addLabeledSection(doc *document.Document, label string, content func()) {
	// Label
	labelPara := doc.AddParagraph()
	labelRun := labelPara.AddRun()
	labelRun.Properties().SetBold(true)
	labelRun.Properties().SetSize(10 * measurement.Point)
	labelRun.Properties().SetColor(color.Gray)
	labelRun.AddText(label)
	labelPara.Properties().SetSpacing(12*measurement.Point, 4*measurement.Point)

	// Content
	content()
}

func (g *DOCXGenerator) addTextLine(doc *document.Document, text string, italic bool) {
	para := doc.AddParagraph()
	run := para.AddRun()
	if italic {
		run.Properties().SetItalic(true)
	}
	run.AddText(text)
}

func (g *DOCXGenerator) addLabelValue(doc *document.Document, label, value string) {
	if value == "" {
		return
	}
	para := doc.AddParagraph()
	labelRun := para.AddRun()
	labelRun.Properties().SetBold(true)
	labelRun.AddText(label + ": ")
	para.AddRun().AddText(value)
}

func (g *DOCXGenerator) addTableCell(row document.Row, text string, bold bool, colorHex string) {
	cell := row.AddCell()
	para := cell.AddParagraph()
	run := para.AddRun()
	if bold {
		run.Properties().SetBold(true)
	}
	if colorHex != "" {
		r, g_, b := HexToRGB(colorHex)
		run.Properties().SetColor(color.RGB(uint8(r), uint8(g_), uint8(b)))
	}
	run.AddText(text)
}
