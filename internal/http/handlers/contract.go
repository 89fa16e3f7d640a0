package handlers

import (
	"net/http"
)

// contractVersion is bumped whenever the served ingestion contract changes
// shape or policy. Clients pin against it.
const contractVersion = "2026-03-01"

// IngestContract serves the static contract description for the ingestion
// endpoint: what a compliant client must send and how the noise must have
// been injected before sending it.
func (a *App) IngestContract(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"version":         contractVersion,
		"metricAllowlist": a.Policy.Allowlist,
		"epsilonMin":      a.Policy.EpsilonMin,
		"epsilonMax":      a.Policy.EpsilonMax,
		"maxMetrics":      a.Policy.MaxMetrics,
		"mechanism": map[string]any{
			"name": "randomized_response",
			"description": "For each occurrence of a tracked boolean event, report the true bit " +
				"with probability p = e^epsilon / (1 + e^epsilon) and its complement otherwise. " +
				"noisyCount is the sum of perturbed bits since the last flush. Raw events, " +
				"per-event timestamps, and identifiers must never be transmitted.",
		},
		"example": map[string]any{
			"batchId":   "b1",
			"timestamp": 1767225600000,
			"metrics": map[string]any{
				"thumbs_down": map[string]any{"noisyCount": 3, "epsilon": 0.5},
			},
		},
	})
}
