package synthesis

import (
	"fmt"
	"strings"

	"github.com/snarg/podium/internal/aggregate"
)

// lowConfidenceThreshold marks speech entries whose recognizer
// confidence is too weak to quote verbatim.
const lowConfidenceThreshold = 0.7

// BuildPrompt renders the aggregated transcript as a structured prompt
// for the generative service: topic, side labels, vote standing, then
// the full chronological content tagged by source.
func BuildPrompt(t *aggregate.Transcript) string {
	var b strings.Builder

	pctA, pctB := t.Votes.Percentages()

	fmt.Fprintf(&b, "You are summarizing a live debate.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n", t.Room.Topic)
	fmt.Fprintf(&b, "Side A (%s) vs Side B (%s)\n", t.Room.SideALabel, t.Room.SideBLabel)
	fmt.Fprintf(&b, "Audience vote: %s %d (%.1f%%), %s %d (%.1f%%)\n",
		t.Room.SideALabel, t.Votes.SideA, pctA,
		t.Room.SideBLabel, t.Votes.SideB, pctB)
	fmt.Fprintf(&b, "Duration: %d minutes. %d chat messages, %d spoken captions.\n\n",
		t.DurationMinutes, t.MessageCount, t.CaptionCount)

	b.WriteString("Chronological content:\n")
	for _, e := range t.Entries {
		b.WriteString(renderEntry(t, e))
		b.WriteByte('\n')
	}

	b.WriteString(`
Write a coherent narrative summary of this debate with these sections:
1. Executive summary (2-3 sentences)
2. Strongest arguments for each side
3. Vote outcome and what it suggests
4. Conclusion

Be neutral. Attribute claims to the side that made them.`)

	return b.String()
}

func renderEntry(t *aggregate.Transcript, e aggregate.Entry) string {
	tag := "[CHAT]"
	if e.SourceKind == aggregate.SourceSpeech {
		tag = "[SPEECH]"
	}

	label := "Unattributed"
	switch e.Side {
	case aggregate.SideA:
		label = t.Room.SideALabel
	case aggregate.SideB:
		label = t.Room.SideBLabel
	}

	annotation := ""
	if e.SourceKind == aggregate.SourceSpeech && e.Confidence != nil && *e.Confidence < lowConfidenceThreshold {
		annotation = " (low confidence)"
	}

	return fmt.Sprintf("%s %s: %s%s", tag, label, e.Text, annotation)
}
