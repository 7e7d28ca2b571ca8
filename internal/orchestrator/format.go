package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/opschat/opschat/internal/monitor"
)

// Provenance tags which backend (or the cache) produced a response.
type Provenance string

const (
	ProvenanceCache     Provenance = "cache"
	ProvenanceLive      Provenance = "live"
	ProvenanceModel     Provenance = "model"
	ProvenanceKnowledge Provenance = "knowledge"
	ProvenanceHelp      Provenance = "help"
	ProvenanceError     Provenance = "error"
)

// Format renders a backend result into the single textual envelope every
// response uses: the text plus a provenance/timestamp trailer. Pure
// function, no I/O.
func Format(text string, p Provenance, at time.Time) string {
	return fmt.Sprintf("%s\n\n[source: %s | %s]",
		strings.TrimRight(text, "\n"), p, at.UTC().Format(time.RFC3339))
}

// renderProblems turns a problem feed into operator-readable text.
func renderProblems(feed *monitor.ProblemFeed) string {
	if len(feed.Problems) == 0 {
		return "No problems detected in the selected time range."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d problems:\n", len(feed.Problems), feed.TotalCount)
	for _, p := range feed.Problems {
		fmt.Fprintf(&b, "- [%s] %s (%s, since %s)",
			p.SeverityLevel, p.Title, p.Status,
			time.UnixMilli(p.StartTime).UTC().Format("2006-01-02 15:04"))
		if len(p.AffectedEntities) > 0 {
			names := make([]string, 0, len(p.AffectedEntities))
			for _, e := range p.AffectedEntities {
				names = append(names, e.Name)
			}
			fmt.Fprintf(&b, "; affects %s", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
