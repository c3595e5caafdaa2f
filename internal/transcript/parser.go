// Package transcript parses uploaded transcript files into ordered,
// timestamped segments. WebVTT and SubRip are supported directly;
// anything else falls back to a plain-text line parser.
package transcript

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaiwahq/kaiwa/internal/domain"
)

// Format identifies a supported transcript file format.
type Format string

const (
	FormatVTT   Format = "vtt"
	FormatSRT   Format = "srt"
	FormatPlain Format = "plain"
)

// DetectFormat picks a parser based on filename extension, falling back
// to content sniffing when the extension is unknown.
func DetectFormat(filename string, content []byte) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".vtt"):
		return FormatVTT
	case strings.HasSuffix(lower, ".srt"):
		return FormatSRT
	}

	head := strings.TrimSpace(string(content[:min(len(content), 64)]))
	if strings.HasPrefix(head, "WEBVTT") {
		return FormatVTT
	}
	if srtIndexLine.MatchString(head) {
		return FormatSRT
	}
	return FormatPlain
}

// Parse converts transcript file content into segment params ordered by
// start time. Segments are re-indexed from zero regardless of any cue
// numbering in the source file.
func Parse(format Format, content []byte) ([]domain.NewSegmentParams, error) {
	const op = "transcript.Parse"

	var (
		segments []domain.NewSegmentParams
		err      error
	)
	switch format {
	case FormatVTT:
		segments, err = parseVTT(content)
	case FormatSRT:
		segments, err = parseSRT(content)
	case FormatPlain:
		segments, err = parsePlain(content)
	default:
		return nil, domain.Invalid(op, fmt.Sprintf("unsupported transcript format: %s", format))
	}
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, domain.Invalid(op, "transcript contains no segments")
	}

	for i := range segments {
		segments[i].SegmentIndex = int32(i)
	}
	return segments, nil
}

var (
	srtIndexLine = regexp.MustCompile(`^\d+\s*$`)

	// 00:01:02.345 or 01:02.345 (VTT), 00:01:02,345 (SRT)
	timestampRe = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})[.,](\d{3})$`)

	cueTimingRe = regexp.MustCompile(`^(\S+)\s+-->\s+(\S+)`)

	// <v Speaker Name>text</v> voice spans in VTT cue payloads
	voiceSpanRe = regexp.MustCompile(`^<v(?:\.\S*)?\s+([^>]+)>`)

	// "Speaker: text" prefix used by SRT files and plain transcripts
	speakerPrefixRe = regexp.MustCompile(`^([A-Za-z][\w .'-]{0,40}?):\s+(.*)$`)

	vttTagRe = regexp.MustCompile(`</?[^>]+>`)
)

func parseVTT(content []byte) ([]domain.NewSegmentParams, error) {
	const op = "transcript.parseVTT"

	lines := splitLines(content)
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "WEBVTT") {
		return nil, domain.Invalid(op, "missing WEBVTT header")
	}

	var segments []domain.NewSegmentParams
	i := 1
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		// Skip blanks, comments and metadata blocks between cues.
		if line == "" {
			i++
			continue
		}
		if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
			i = skipBlock(lines, i)
			continue
		}

		// Optional cue identifier line precedes the timing line.
		if !strings.Contains(line, "-->") {
			i++
			if i >= len(lines) || !strings.Contains(lines[i], "-->") {
				continue
			}
			line = strings.TrimSpace(lines[i])
		}

		startMs, endMs, err := parseCueTiming(line)
		if err != nil {
			return nil, domain.Invalid(op, fmt.Sprintf("line %d: %v", i+1, err))
		}
		i++

		var (
			speaker string
			text    []string
		)
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			payload := strings.TrimSpace(lines[i])
			if m := voiceSpanRe.FindStringSubmatch(payload); m != nil && speaker == "" {
				speaker = strings.TrimSpace(m[1])
			}
			payload = vttTagRe.ReplaceAllString(payload, "")
			if payload != "" {
				text = append(text, payload)
			}
			i++
		}

		joined := strings.TrimSpace(strings.Join(text, " "))
		if speaker == "" {
			if m := speakerPrefixRe.FindStringSubmatch(joined); m != nil {
				speaker = m[1]
				joined = m[2]
			}
		}
		if joined == "" {
			continue
		}

		segments = append(segments, domain.NewSegmentParams{
			StartMs:      startMs,
			EndMs:        endMs,
			SpeakerLabel: speaker,
			Text:         joined,
		})
	}
	return segments, nil
}

func parseSRT(content []byte) ([]domain.NewSegmentParams, error) {
	const op = "transcript.parseSRT"

	lines := splitLines(content)
	var segments []domain.NewSegmentParams
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			continue
		}

		// Subtitle index line is optional in practice; tolerate its absence.
		if srtIndexLine.MatchString(line) {
			i++
			if i >= len(lines) {
				break
			}
			line = strings.TrimSpace(lines[i])
		}

		if !strings.Contains(line, "-->") {
			return nil, domain.Invalid(op, fmt.Sprintf("line %d: expected timing line, got %q", i+1, line))
		}
		startMs, endMs, err := parseCueTiming(line)
		if err != nil {
			return nil, domain.Invalid(op, fmt.Sprintf("line %d: %v", i+1, err))
		}
		i++

		var text []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			text = append(text, strings.TrimSpace(lines[i]))
			i++
		}

		joined := strings.TrimSpace(strings.Join(text, " "))
		var speaker string
		if m := speakerPrefixRe.FindStringSubmatch(joined); m != nil {
			speaker = m[1]
			joined = m[2]
		}
		if joined == "" {
			continue
		}

		segments = append(segments, domain.NewSegmentParams{
			StartMs:      startMs,
			EndMs:        endMs,
			SpeakerLabel: speaker,
			Text:         joined,
		})
	}
	return segments, nil
}

// parsePlain handles transcripts with no timing information: one segment
// per non-empty line, all timestamps zero. Speaker prefixes like
// "Coach: ..." are still recognized.
func parsePlain(content []byte) ([]domain.NewSegmentParams, error) {
	var segments []domain.NewSegmentParams
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var speaker string
		if m := speakerPrefixRe.FindStringSubmatch(line); m != nil {
			speaker = m[1]
			line = m[2]
		}
		if line == "" {
			continue
		}
		segments = append(segments, domain.NewSegmentParams{
			SpeakerLabel: speaker,
			Text:         line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.Internal(err, "transcript.parsePlain", "failed to scan transcript")
	}
	return segments, nil
}

func parseCueTiming(line string) (startMs, endMs int64, err error) {
	m := cueTimingRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, fmt.Errorf("malformed cue timing %q", line)
	}
	startMs, err = parseTimestamp(m[1])
	if err != nil {
		return 0, 0, err
	}
	endMs, err = parseTimestamp(m[2])
	if err != nil {
		return 0, 0, err
	}
	if endMs < startMs {
		return 0, 0, fmt.Errorf("cue ends before it starts: %q", line)
	}
	return startMs, endMs, nil
}

func parseTimestamp(s string) (int64, error) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	var hours int64
	if m[1] != "" {
		hours, _ = strconv.ParseInt(m[1], 10, 64)
	}
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)
	millis, _ := strconv.ParseInt(m[4], 10, 64)
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("timestamp out of range %q", s)
	}
	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

func skipBlock(lines []string, i int) int {
	for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
		i++
	}
	return i
}

func splitLines(content []byte) []string {
	s := strings.TrimPrefix(string(content), "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
