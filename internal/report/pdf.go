package report

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/kaiwahq/kaiwa/internal/domain"
)

// =============================================================================
// PDF Generator
// =============================================================================

// PDFGenerator generates PDF reports from session data.
type PDFGenerator struct {
	// Page dimensions (A4 in mm)
	pageWidth  float64
	pageHeight float64
	margin     float64

	// Content area
	contentWidth float64
}

// NewPDFGenerator creates a new PDF generator with default settings.
func NewPDFGenerator() *PDFGenerator {
	margin := 15.0
	pageWidth := 210.0 // A4 width in mm
	return &PDFGenerator{
		pageWidth:    pageWidth,
		pageHeight:   297.0, // A4 height in mm
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
	}
}

// Format returns the output format of this generator.
func (g *PDFGenerator) Format() domain.ReportFormat {
	return domain.ReportFormatPDF
}

// Generate creates a PDF report and writes it to the provided writer.
func (g *PDFGenerator) Generate(ctx context.Context, data *domain.ReportData, w io.Writer) (int64, error) {
	pdf := fpdf.New("P", "mm", "A4", "")

	// Set document metadata
	pdf.SetTitle("Coaching Session Report - "+data.SessionTitle, true)
	pdf.SetAuthor(data.CoachName, true)
	pdf.SetCreator("Kaiwa Coaching Platform", true)

	// Enable automatic page breaks with footer space
	pdf.SetAutoPageBreak(true, 20)

	// Set up footer on each page
	pdf.SetFooterFunc(func() {
		g.addFooter(pdf, data)
	})

	// Generate report sections
	g.addCoverPage(pdf, data)
	g.addSessionOverview(pdf, data)
	if data.Analysis != nil {
		g.addAnalysis(pdf, data)
	}
	if data.HasTranscript() {
		g.addTranscriptAppendix(pdf, data)
	}

	// Check for errors during generation
	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	// Write to buffer to count bytes
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// Cover Page
// =============================================================================

func (g *PDFGenerator) addCoverPage(pdf *fpdf.Fpdf, data *domain.ReportData) {
	pdf.AddPage()

	// Indigo header bar
	r, gr, b := HexToRGB(BrandColors.Indigo)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(0, 0, g.pageWidth, 70, "F")

	// Title
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetXY(g.margin, 25)
	pdf.Cell(0, 12, "Coaching Session Report")

	// Subtitle with session title
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(g.margin, 42)
	pdf.Cell(0, 8, data.SessionTitle)

	// Reset text color for body content
	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)

	// Session block
	pdf.SetXY(g.margin, 90)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "SESSION")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, FormatDate(data.SessionDate))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Duration: "+FormatDuration(data.DurationMinutes))
	pdf.Ln(7)

	// Coach information
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "COACH")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	if data.CoachName != "" {
		pdf.Cell(0, 7, data.CoachName)
		pdf.Ln(7)
	}
	if data.PracticeName != "" {
		pdf.Cell(0, 7, data.PracticeName)
		pdf.Ln(7)
	}

	// Client information (if available)
	if data.ClientName != "" {
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "CLIENT")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 12)
		pdf.Cell(0, 7, data.ClientName)
		pdf.Ln(7)
		if data.ClientGoals != "" {
			pdf.SetFont("Helvetica", "I", 11)
			pdf.MultiCell(g.contentWidth, 6, "Goals: "+data.ClientGoals, "", "L", false)
		}
	}
}

// =============================================================================
// Session Overview
// =============================================================================

func (g *PDFGenerator) addSessionOverview(pdf *fpdf.Fpdf, data *domain.ReportData) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Session Overview")

	pdf.SetFont("Helvetica", "", 10)
	g.addLabelValue(pdf, "Date", FormatDate(data.SessionDate))
	g.addLabelValue(pdf, "Duration", FormatDuration(data.DurationMinutes))
	if data.ClientName != "" {
		g.addLabelValue(pdf, "Client", data.ClientName)
	}

	// Talk time table, only when a transcript exists
	if len(data.TalkRatioByRole) > 0 {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Talk Time")
		pdf.Ln(10)

		// Table header
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(245, 245, 245)
		pdf.CellFormat(80, 8, "Speaker", "1", 0, "L", true, 0, "")
		pdf.CellFormat(40, 8, "Share", "1", 1, "C", true, 0, "")

		// Table rows
		pdf.SetFont("Helvetica", "", 10)
		for _, role := range talkRatioRoles {
			ratio, ok := data.TalkRatioByRole[role]
			if !ok {
				continue
			}
			r, gr, b := HexToRGB(RoleColor(role))
			pdf.SetFillColor(r, gr, b)
			pdf.CellFormat(5, 8, "", "1", 0, "C", true, 0, "")
			pdf.SetFillColor(255, 255, 255)
			pdf.CellFormat(75, 8, RoleLabel(role), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 8, FormatPercent(ratio), "1", 1, "C", false, 0, "")
		}
	}

	// Coach notes (if available)
	if data.Notes != "" {
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Session Notes")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth, 6, data.Notes, "", "L", false)
	}
}

// =============================================================================
// Analysis Section
// =============================================================================

func (g *PDFGenerator) addAnalysis(pdf *fpdf.Fpdf, data *domain.ReportData) {
	analysis := data.Analysis

	pdf.AddPage()
	g.addSectionHeader(pdf, "Session Analysis")

	// Summary
	if analysis.Summary != "" {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Summary")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth, 6, analysis.Summary, "", "L", false)
		pdf.Ln(4)
	}

	// Key topics
	if len(analysis.KeyTopics) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Key Topics")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		for _, topic := range analysis.KeyTopics {
			pdf.Cell(0, 6, "- "+TitleLabel(topic))
			pdf.Ln(6)
		}
	}

	// Highlights
	if len(analysis.Highlights) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Notable Moments")
		pdf.Ln(10)

		for i, moment := range analysis.Highlights {
			if pdf.GetY() > 230 {
				pdf.AddPage()
			}
			g.addMoment(pdf, moment, i+1)

			if i < len(analysis.Highlights)-1 {
				pdf.Ln(4)
				r, gr, b := HexToRGB(BrandColors.Border)
				pdf.SetDrawColor(r, gr, b)
				pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
				pdf.Ln(4)
			}
		}
	}

	// Suggested follow-up questions
	if len(analysis.SuggestedQuestions) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Suggested Follow-up Questions")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		for _, q := range analysis.SuggestedQuestions {
			pdf.MultiCell(g.contentWidth, 6, "- "+q, "", "L", false)
		}
	}
}

func (g *PDFGenerator) addMoment(pdf *fpdf.Fpdf, moment domain.AnalysisMoment, number int) {
	// Teal marker
	r, gr, b := HexToRGB(BrandColors.Teal)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(g.margin, pdf.GetY(), 4, 8, "F")

	pdf.SetX(g.margin + 8)
	pdf.SetFont("Helvetica", "B", 11)
	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
	header := fmt.Sprintf("#%d  %s", number, TitleLabel(moment.Label))
	if moment.StartMs > 0 {
		header += "  [" + FormatTimestamp(moment.StartMs) + "]"
	}
	pdf.Cell(0, 8, header)
	pdf.Ln(10)

	// Quote
	if moment.Quote != "" {
		pdf.SetX(g.margin + 8)
		pdf.SetFont("Helvetica", "I", 10)
		r, gr, b = HexToRGB(BrandColors.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.MultiCell(g.contentWidth-8, 5, "\""+moment.Quote+"\"", "", "L", false)
		r, gr, b = HexToRGB(BrandColors.TextDark)
		pdf.SetTextColor(r, gr, b)
		pdf.Ln(2)
	}

	// Comment
	if moment.Comment != "" {
		pdf.SetX(g.margin + 8)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth-8, 5, moment.Comment, "", "L", false)
	}
}

// =============================================================================
// Transcript Appendix
// =============================================================================

func (g *PDFGenerator) addTranscriptAppendix(pdf *fpdf.Fpdf, data *domain.ReportData) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Appendix: Transcript")

	for _, seg := range data.Segments {
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}

		role := seg.SpeakerRole
		if !role.IsValid() {
			role = domain.SpeakerRoleUnassigned
		}

		// Timestamp and speaker line
		pdf.SetFont("Helvetica", "B", 9)
		r, gr, b := HexToRGB(RoleColor(role))
		pdf.SetTextColor(r, gr, b)
		speaker := RoleLabel(role)
		if role == domain.SpeakerRoleUnassigned && seg.SpeakerLabel != "" {
			speaker = "Speaker " + seg.SpeakerLabel
		}
		pdf.Cell(0, 5, FormatTimestamp(seg.StartMs)+"  "+speaker)
		pdf.Ln(5)

		// Utterance text
		r, gr, b = HexToRGB(BrandColors.TextDark)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(g.contentWidth, 5, seg.Text, "", "L", false)
		pdf.Ln(2)
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

func (g *PDFGenerator) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	// Draw indigo underline
	r, gr, b := HexToRGB(BrandColors.Indigo)
	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.5)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(r, gr, b)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(10)

	// Reset text color
	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
}

func (g *PDFGenerator) addLabelValue(pdf *fpdf.Fpdf, label, value string) {
	if value == "" {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(40, 6, label+":")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(g.contentWidth-40, 6, value, "", "L", false)
}

func (g *PDFGenerator) addFooter(pdf *fpdf.Fpdf, data *domain.ReportData) {
	pdf.SetY(-15)

	// Draw separator line
	r, gr, b := HexToRGB(BrandColors.Border)
	pdf.SetDrawColor(r, gr, b)
	pdf.Line(g.margin, pdf.GetY()-3, g.pageWidth-g.margin, pdf.GetY()-3)

	// Footer text
	r, gr, b = HexToRGB(BrandColors.TextMuted)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont("Helvetica", "", 8)

	// Left: generation date
	pdf.Cell(0, 10, "Generated: "+FormatDateTime(data.GeneratedAt))

	// Right: page number
	pdf.SetX(-g.margin - 30)
	pdf.CellFormat(30, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
}
