// Package domain contains core business types and interfaces.
//
// This file defines transcript types: the diarized segments of a session
// transcript and the mapping of speaker labels to coach/client roles.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SpeakerRole is the display role assigned to a diarized speaker label.
type SpeakerRole string

const (
	SpeakerRoleCoach      SpeakerRole = "coach"
	SpeakerRoleClient     SpeakerRole = "client"
	SpeakerRoleUnassigned SpeakerRole = "unassigned"
)

// IsValid returns true if the role is a recognized value.
func (r SpeakerRole) IsValid() bool {
	switch r {
	case SpeakerRoleCoach, SpeakerRoleClient, SpeakerRoleUnassigned:
		return true
	}
	return false
}

// TranscriptSegment is one diarized utterance within a session transcript.
type TranscriptSegment struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	SegmentIndex int32       // Position within the transcript, 0-based
	StartMs      int64       // Start offset from session start, milliseconds
	EndMs        int64       // End offset, milliseconds
	SpeakerLabel string      // Raw diarization label (e.g., "A", "Speaker 1")
	SpeakerRole  SpeakerRole // Assigned display role
	Text         string      // Utterance text
	CreatedAt    time.Time
}

// Duration returns the segment length.
func (s TranscriptSegment) Duration() time.Duration {
	return time.Duration(s.EndMs-s.StartMs) * time.Millisecond
}

// Transcript is a full ordered transcript for a session.
type Transcript struct {
	SessionID uuid.UUID
	Segments  []TranscriptSegment
}

// SpeakerLabels returns the distinct speaker labels in order of first
// appearance. Used by the dashboard to offer role assignment.
func (t Transcript) SpeakerLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, seg := range t.Segments {
		if seg.SpeakerLabel == "" || seen[seg.SpeakerLabel] {
			continue
		}
		seen[seg.SpeakerLabel] = true
		labels = append(labels, seg.SpeakerLabel)
	}
	return labels
}

// TalkRatioByRole returns the fraction of spoken time attributed to each
// assigned role. Unassigned segments count toward SpeakerRoleUnassigned.
func (t Transcript) TalkRatioByRole() map[SpeakerRole]float64 {
	totals := make(map[SpeakerRole]int64)
	var total int64
	for _, seg := range t.Segments {
		d := seg.EndMs - seg.StartMs
		if d < 0 {
			continue
		}
		role := seg.SpeakerRole
		if !role.IsValid() {
			role = SpeakerRoleUnassigned
		}
		totals[role] += d
		total += d
	}

	ratios := make(map[SpeakerRole]float64, len(totals))
	if total == 0 {
		return ratios
	}
	for role, ms := range totals {
		ratios[role] = float64(ms) / float64(total)
	}
	return ratios
}

// TotalDurationMs returns the end offset of the last segment, or 0 for an
// empty transcript. Segments are assumed ordered by SegmentIndex.
func (t Transcript) TotalDurationMs() int64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].EndMs
}

// AssignSpeakerRolesParams maps raw speaker labels to display roles.
type AssignSpeakerRolesParams struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Roles     map[string]SpeakerRole // speaker label -> role
}

// NewSegmentParams is a parsed segment ready for insertion.
type NewSegmentParams struct {
	SegmentIndex int32
	StartMs      int64
	EndMs        int64
	SpeakerLabel string
	Text         string
}
