// Package domain contains core business types and interfaces.
//
// This file defines report types: the output formats a session report can
// be generated in and the aggregated data a generator renders from.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReportFormat is the output format of a generated session report.
type ReportFormat string

const (
	ReportFormatPDF  ReportFormat = "pdf"
	ReportFormatDOCX ReportFormat = "docx"
)

// IsValid returns true if the format is a recognized value.
func (f ReportFormat) IsValid() bool {
	return f == ReportFormatPDF || f == ReportFormatDOCX
}

// ContentType returns the MIME type for the format.
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatPDF:
		return "application/pdf"
	case ReportFormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

// String returns the format as a string (also the file extension).
func (f ReportFormat) String() string {
	return string(f)
}

// ReportStatus lists the formats a session's report has been generated in.
type ReportStatus struct {
	SessionID uuid.UUID
	Available []ReportFormat
}

// ReportData aggregates everything a report generator needs to render a
// session report. Built by the report generation job from the session, its
// transcript and its analysis.
type ReportData struct {
	// Coach info
	CoachName    string
	PracticeName string
	CoachEmail   string

	// Client info
	ClientName  string
	ClientGoals string

	// Session details
	SessionID       uuid.UUID
	SessionTitle    string
	SessionDate     time.Time
	DurationMinutes int32
	Notes           string

	// Analysis, nil when the session has not been analyzed
	Analysis *SessionAnalysis

	// Talk time per assigned role, empty when no transcript exists
	TalkRatioByRole map[SpeakerRole]float64

	// Transcript appendix, nil to omit
	Segments []TranscriptSegment

	// Metadata
	GeneratedAt time.Time
}

// HasTranscript returns true when the report includes transcript segments.
func (d *ReportData) HasTranscript() bool {
	return len(d.Segments) > 0
}
