// Package knowledge is the static troubleshooting knowledge base.
//
// Lookup matches a message against each document's keyword set and always
// succeeds: when nothing matches, a generic methodology document is
// returned. No I/O, no failure path: the knowledge base is the cascade's
// floor beneath the live and model backends.
package knowledge

import "strings"

// Document is one canned guidance entry.
type Document struct {
	Title    string
	Body     string
	keywords []string
}

// defaultDoc is returned when no keyword matches.
var defaultDoc = Document{
	Title: "General Troubleshooting Methodology",
	Body: `1. Define the problem: what changed, when, and what is the user impact?
2. Establish scope: one service, one zone, or everything?
3. Check recent deployments and configuration changes first.
4. Work from symptoms to causes using the four golden signals: latency, traffic, errors, saturation.
5. Mitigate before you diagnose: restore service, then find the root cause.
6. Record a timeline as you go; it becomes the postmortem.`,
}

var documents = []Document{
	{
		Title: "Troubleshooting High Latency",
		Body: `Start at the edge and walk inward: load balancer metrics, then service
response times, then dependencies. Compare current latency percentiles
against the previous week, not just the previous hour. Slow dependencies
usually surface as rising p95 with a flat p50. Check connection pool
saturation and garbage-collection pauses before suspecting the network.`,
		keywords: []string{"latency", "slow", "response time", "performance"},
	},
	{
		Title: "Investigating Service Errors",
		Body: `Separate error classes before counting them: client errors (4xx) trend
with traffic, server errors (5xx) trend with defects and saturation.
Correlate the first occurrence with deployments, feature flags, and
upstream incidents. A single failing instance behind a balancer shows up
as a low, steady error rate; check per-instance breakdowns.`,
		keywords: []string{"error", "5xx", "failure", "exception", "investigate"},
	},
	{
		Title: "Correlating Alerts Across Services",
		Body: `Alerts that fire together usually share a dependency, not a cause.
Build the dependency path between alerting services and look for the
deepest common node. Time-order matters: the first alert in the chain is
closest to the root cause. Suppress downstream alerts before they bury
the signal.`,
		keywords: []string{"correlate", "alerts", "cascade", "dependency"},
	},
	{
		Title: "Incident Response Methodology",
		Body: `Assign one incident commander; everyone else investigates or
communicates, never both. Declare severity early and revise freely.
Mitigation options in order of preference: roll back, fail over, feature-
flag off, scale up. Status updates every 30 minutes even when nothing
changed. The incident is not over until the monitoring that missed it is
fixed.`,
		keywords: []string{"incident", "outage", "methodology", "runbook", "postmortem"},
	},
	{
		Title: "Memory and Resource Saturation",
		Body: `Saturation kills gradually: watch trends, not thresholds. For memory,
distinguish leak (monotonic growth across restarts) from load (growth
tracking traffic). Review limits and requests together: a pod can be
simultaneously over-provisioned and throttled. Restarts hide leaks;
graphs across restarts reveal them.`,
		keywords: []string{"memory", "cpu", "saturation", "resource", "oom"},
	},
}

// Lookup returns the best-matching document for a message. The document
// with the most keyword hits wins; ties go to the earlier document. Always
// returns a usable document.
func Lookup(message string) Document {
	text := strings.ToLower(message)

	best := -1
	bestHits := 0
	for i, doc := range documents {
		hits := 0
		for _, kw := range doc.keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}

	if best < 0 {
		return defaultDoc
	}
	return documents[best]
}

// Titles lists the available document titles, for the capability summary.
func Titles() []string {
	titles := make([]string, 0, len(documents)+1)
	for _, doc := range documents {
		titles = append(titles, doc.Title)
	}
	titles = append(titles, defaultDoc.Title)
	return titles
}
