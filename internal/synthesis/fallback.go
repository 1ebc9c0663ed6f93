package synthesis

import (
	"fmt"
	"strings"

	"github.com/snarg/podium/internal/aggregate"
)

const (
	fallbackTopEntries = 3
	fallbackExcerptMax = 150 // runes
)

// Fallback produces the deterministic local summary used when the
// generative service is unavailable. It is a pure function of the
// transcript: the same input always yields the same text, and it never
// fails.
func Fallback(t *aggregate.Transcript) string {
	var b strings.Builder

	pctA, pctB := t.Votes.Percentages()

	fmt.Fprintf(&b, "Debate Summary: %s\n\n", t.Room.Topic)

	fmt.Fprintf(&b,
		"This %d-minute debate between %s and %s produced %d chat messages and %d spoken captions.\n\n",
		t.DurationMinutes, t.Room.SideALabel, t.Room.SideBLabel, t.MessageCount, t.CaptionCount)

	writeSideSection(&b, t.Room.SideALabel, t.SideAEntries)
	writeSideSection(&b, t.Room.SideBLabel, t.SideBEntries)

	b.WriteString("Vote Results:\n")
	fmt.Fprintf(&b, "- %s: %d votes (%.1f%%)\n", t.Room.SideALabel, t.Votes.SideA, pctA)
	fmt.Fprintf(&b, "- %s: %d votes (%.1f%%)\n\n", t.Room.SideBLabel, t.Votes.SideB, pctB)

	fmt.Fprintf(&b, "Timeline: %d messages and %d captions across %d minutes.\n\n",
		t.MessageCount, t.CaptionCount, t.DurationMinutes)

	b.WriteString(conclusion(t))

	return b.String()
}

func writeSideSection(b *strings.Builder, label string, entries []aggregate.Entry) {
	fmt.Fprintf(b, "Key contributions — %s:\n", label)
	if len(entries) == 0 {
		b.WriteString("- (no recorded contributions)\n\n")
		return
	}
	n := len(entries)
	if n > fallbackTopEntries {
		n = fallbackTopEntries
	}
	for _, e := range entries[:n] {
		fmt.Fprintf(b, "- %s\n", excerpt(e.Text, fallbackExcerptMax))
	}
	b.WriteByte('\n')
}

func conclusion(t *aggregate.Transcript) string {
	switch {
	case t.Votes.Total() == 0:
		return "Conclusion: no audience votes were cast, so the outcome is undecided."
	case t.Votes.SideA > t.Votes.SideB:
		return fmt.Sprintf("Conclusion: the audience favored %s.", t.Room.SideALabel)
	case t.Votes.SideB > t.Votes.SideA:
		return fmt.Sprintf("Conclusion: the audience favored %s.", t.Room.SideBLabel)
	default:
		return "Conclusion: the audience vote ended in a tie."
	}
}

func excerpt(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
