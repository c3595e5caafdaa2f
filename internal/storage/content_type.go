package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// =============================================================================
// Content Type Detection
// =============================================================================

// DetectContentType determines the MIME type of a file.
//
// Detection priority:
// 1. If providedType is non-empty, use it directly
// 2. Try to detect from file extension using mime.TypeByExtension
// 3. Sniff content from the first 512 bytes of data (if available)
// 4. Fall back to "application/octet-stream"
//
// Parameters:
//   - providedType: Explicitly provided content type (e.g., from HTTP header)
//   - filename: File name used to extract extension for MIME lookup
//   - data: Optional reader for content sniffing (only first 512 bytes are read)
//
// Returns the detected MIME type.
func DetectContentType(providedType, filename string, data io.Reader) string {
	// 1. Use provided type if available
	if providedType != "" {
		return providedType
	}

	// 2. Try extension-based detection
	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := audioExtensionTypes[ext]; contentType != "" {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	// 3. Try content sniffing if data is available
	if data != nil {
		// Read up to 512 bytes for sniffing (http.DetectContentType requirement)
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			// If we can't read, fall through to default
		} else {
			// DetectContentType always returns a valid MIME type
			return http.DetectContentType(buffer[:n])
		}
	}

	// 4. Fall back to generic binary type
	return "application/octet-stream"
}

// audioExtensionTypes covers audio extensions the mime package doesn't
// resolve consistently across platforms.
var audioExtensionTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".aac":  "audio/aac",
}

// =============================================================================
// Content Type Validation
// =============================================================================

// AllowedAudioTypes defines the MIME types accepted for session recordings.
var AllowedAudioTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true, // Some browsers report this instead of audio/mpeg
	"audio/mp4":   true,
	"audio/x-m4a": true, // Apple voice memos
	"audio/m4a":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
	"audio/ogg":   true,
	"audio/opus":  true,
	"audio/flac":  true,
	"audio/webm":  true,
	"audio/aac":   true,
}

// IsAllowedAudioType checks if a content type is an allowed audio format
// for session recording uploads.
func IsAllowedAudioType(contentType string) bool {
	// Normalize the content type (remove parameters like codecs)
	baseType := strings.Split(contentType, ";")[0]
	baseType = strings.TrimSpace(strings.ToLower(baseType))
	return AllowedAudioTypes[baseType]
}

// IsAudio returns true if the content type is any audio format.
func IsAudio(contentType string) bool {
	baseType := strings.Split(contentType, ";")[0]
	baseType = strings.TrimSpace(strings.ToLower(baseType))
	return strings.HasPrefix(baseType, "audio/")
}

// AllowedTranscriptTypes defines the MIME types accepted for transcript
// uploads. Transcripts also arrive with generic text types because browsers
// rarely know the VTT/SRT types.
var AllowedTranscriptTypes = map[string]bool{
	"text/vtt":             true,
	"application/x-subrip": true,
	"text/plain":           true,
	"text/srt":             true,
}

// IsAllowedTranscriptType checks if a content type is acceptable for a
// transcript file upload.
func IsAllowedTranscriptType(contentType string) bool {
	baseType := strings.Split(contentType, ";")[0]
	baseType = strings.TrimSpace(strings.ToLower(baseType))
	return AllowedTranscriptTypes[baseType]
}

// IsPDF returns true if the content type is a PDF document.
func IsPDF(contentType string) bool {
	baseType := strings.Split(contentType, ";")[0]
	baseType = strings.TrimSpace(strings.ToLower(baseType))
	return baseType == "application/pdf"
}

// =============================================================================
// File Extension Helpers
// =============================================================================

// extensionForContentType returns a common file extension for a MIME type.
// This is useful when generating filenames from content types.
func extensionForContentType(contentType string) string {
	baseType := strings.Split(contentType, ";")[0]
	baseType = strings.TrimSpace(strings.ToLower(baseType))

	// Common mappings
	extensions := map[string]string{
		"audio/mpeg":      ".mp3",
		"audio/mp3":       ".mp3",
		"audio/mp4":       ".m4a",
		"audio/x-m4a":     ".m4a",
		"audio/m4a":       ".m4a",
		"audio/wav":       ".wav",
		"audio/x-wav":     ".wav",
		"audio/ogg":       ".ogg",
		"audio/opus":      ".opus",
		"audio/flac":      ".flac",
		"audio/webm":      ".webm",
		"audio/aac":       ".aac",
		"text/vtt":        ".vtt",
		"application/pdf": ".pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	}

	if ext, ok := extensions[baseType]; ok {
		return ext
	}

	// Fall back to using mime package's reverse lookup
	// Get all extensions for this type and return the first one
	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}

	return ".bin"
}
