package anthropic

import "fmt"

// buildSessionAnalysisPrompt creates the prompt for analyzing a coaching
// session transcript. The transcript is rendered separately and appended
// by the caller.
func buildSessionAnalysisPrompt(sessionTitle, clientGoals string, durationMinutes int32) string {
	prompt := `You are an experienced coaching supervisor reviewing the transcript of a one-on-one coaching session. Your task is to help the coach reflect on the session and prepare for the next one.

Analyze the transcript for:
1. **Session summary** - What was discussed, what shifted for the client, what was agreed. 2-3 short paragraphs.
2. **Key topics** - The main themes of the conversation, as short phrases.
3. **Notable coaching moments** - Powerful questions, reframes, moments the client had an insight, or missed opportunities. Quote the transcript and explain briefly why the moment matters.
4. **Suggested follow-up questions** - Questions the coach could open the next session with, grounded in what the client said.

**Important Guidelines:**
- Ground every observation in the transcript; quote it where possible
- Speaker lines labeled "coach" are the coach, lines labeled "client" are the client; other labels mean the role is unknown
- Be specific and concise; the coach will skim this between sessions
- Do not invent content that is not in the transcript
- Keep the client's own words in quotes where they carry weight`

	if sessionTitle != "" {
		prompt += fmt.Sprintf("\n\n**Session:** %s", sessionTitle)
	}
	if durationMinutes > 0 {
		prompt += fmt.Sprintf(" (%d minutes)", durationMinutes)
	}
	if clientGoals != "" {
		prompt += fmt.Sprintf("\n\n**Client's stated goals:**\n%s", clientGoals)
	}

	prompt += `

**Response Format:**
Return your analysis as a JSON object with this exact structure:

{
  "summary": "2-3 paragraph session summary",
  "key_topics": ["topic one", "topic two"],
  "highlights": [
    {
      "start_ms": 0,
      "label": "powerful question",
      "quote": "The relevant transcript excerpt",
      "comment": "Why this moment matters"
    }
  ],
  "suggested_questions": ["Question for the next session"]
}

For "start_ms", use the millisecond timestamp from the transcript line the quote comes from, or 0 if unclear.

**Important:** Return ONLY the JSON object, no additional text or explanation.`

	return prompt
}
