// Package report provides PDF and DOCX generation for coaching session
// reports.
//
// This package defines a Generator interface implemented by PDFGenerator and
// DOCXGenerator, along with common helpers for formatting and styling reports
// in the Kaiwa brand style.
package report

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kaiwahq/kaiwa/internal/domain"
)

// =============================================================================
// Generator Interface
// =============================================================================

// Generator defines the interface for report generators.
// Implementations handle the specifics of each format (PDF, DOCX).
type Generator interface {
	// Generate creates a report and writes it to the provided writer.
	// Returns the number of bytes written and any error.
	Generate(ctx context.Context, data *domain.ReportData, w io.Writer) (int64, error)

	// Format returns the output format of this generator.
	Format() domain.ReportFormat
}

// =============================================================================
// Brand Colors
// =============================================================================

// BrandColors defines the color palette for reports.
// These match the Kaiwa brand colors from the dashboard theme.
var BrandColors = struct {
	Indigo     string // Primary brand color
	Teal       string // Accent color
	TextDark   string // Primary text
	TextMuted  string // Secondary text
	Border     string // Borders and dividers
	Background string // Light background
	White      string // White
}{
	Indigo:     "#3B4A8C",
	Teal:       "#0D9488",
	TextDark:   "#1F2937",
	TextMuted:  "#6B7280",
	Border:     "#E5E7EB",
	Background: "#F9FAFB",
	White:      "#FFFFFF",
}

// =============================================================================
// Speaker Role Colors
// =============================================================================

// RoleColors maps speaker roles to display colors.
var RoleColors = map[domain.SpeakerRole]string{
	domain.SpeakerRoleCoach:      "#3B4A8C", // Indigo
	domain.SpeakerRoleClient:     "#0D9488", // Teal
	domain.SpeakerRoleUnassigned: "#6B7280", // Gray-500
}

// RoleColor returns the color for a speaker role.
func RoleColor(role domain.SpeakerRole) string {
	if color, ok := RoleColors[role]; ok {
		return color
	}
	return BrandColors.TextMuted
}

// RoleLabel returns a human-readable label for a speaker role.
func RoleLabel(role domain.SpeakerRole) string {
	switch role {
	case domain.SpeakerRoleCoach:
		return "Coach"
	case domain.SpeakerRoleClient:
		return "Client"
	case domain.SpeakerRoleUnassigned:
		return "Unassigned"
	default:
		return TitleLabel(string(role))
	}
}

// titleCaser title-cases AI-derived labels for display. The analysis
// provider returns topics and moment labels in lowercase.
var titleCaser = cases.Title(language.English)

// TitleLabel renders a lowercase label (e.g. "powerful question") in
// title case for report headings.
func TitleLabel(s string) string {
	return titleCaser.String(s)
}

// =============================================================================
// Color Conversion Helpers
// =============================================================================

// HexToRGB converts a hex color string to RGB values.
// Input format: "#RRGGBB" or "RRGGBB"
func HexToRGB(hex string) (r, g, b int) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}

	r = hexToDec(hex[0:2])
	g = hexToDec(hex[2:4])
	b = hexToDec(hex[4:6])
	return
}

// hexToDec converts a 2-character hex string to decimal.
func hexToDec(hex string) int {
	val := 0
	for _, c := range hex {
		val *= 16
		switch {
		case c >= '0' && c <= '9':
			val += int(c - '0')
		case c >= 'a' && c <= 'f':
			val += int(c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			val += int(c - 'A' + 10)
		}
	}
	return val
}

// =============================================================================
// Text Formatting Helpers
// =============================================================================

// TruncateText truncates text to a maximum length, adding ellipsis if needed.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

// FormatDate formats a date for display in reports.
func FormatDate(t interface{ Format(string) string }) string {
	return t.Format("January 2, 2006")
}

// FormatDateTime formats a datetime for display in reports.
func FormatDateTime(t interface{ Format(string) string }) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}

// FormatTimestamp renders a millisecond offset as m:ss or h:mm:ss.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatPercent renders a 0-1 ratio as a whole percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatDuration renders a minute count as "1h 30m" or "45m".
func FormatDuration(minutes int32) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// talkRatioRoles is the display order for the talk ratio table.
var talkRatioRoles = []domain.SpeakerRole{
	domain.SpeakerRoleCoach,
	domain.SpeakerRoleClient,
	domain.SpeakerRoleUnassigned,
}
