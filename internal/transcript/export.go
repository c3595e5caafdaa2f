package transcript

import (
	"fmt"
	"strings"

	"github.com/kaiwahq/kaiwa/internal/domain"
)

// ExportVTT renders transcript segments back out as a WebVTT document.
// Assigned speaker roles take precedence over the raw diarization label
// so exported files read "coach" / "client" once roles are set.
func ExportVTT(t *domain.Transcript) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range t.Segments {
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatTimestamp(seg.StartMs), formatTimestamp(seg.EndMs)))
		speaker := seg.SpeakerLabel
		if seg.SpeakerRole != domain.SpeakerRoleUnassigned {
			speaker = string(seg.SpeakerRole)
		}
		if speaker != "" {
			b.WriteString(fmt.Sprintf("<v %s>%s</v>\n\n", speaker, seg.Text))
		} else {
			b.WriteString(seg.Text + "\n\n")
		}
	}
	return []byte(b.String())
}

func formatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
