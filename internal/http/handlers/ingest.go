package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"signals/internal/domain"
	"signals/internal/middleware"
)

// maxBodyBytes caps the ingest request body well above any policy-compliant
// batch. Oversized bodies fail the read, not the parser.
const maxBodyBytes = 64 * 1024

// Ingest accepts one noisy batch, validates it against the policy, and folds
// it into the day's counters. By the time this handler runs the rate limiter
// has already admitted the request.
func (a *App) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "malformed_input", "could not read request body")
		return
	}

	batch, err := a.Policy.ParseBatch(body)
	if err != nil {
		a.rejectBatch(w, r, err)
		return
	}

	now := a.now().UTC()
	submitter := middleware.ClientKeyFromContext(r.Context())
	if err := a.Counters.ApplyBatch(r.Context(), domain.Day(now), now.Hour(), submitter, batch.Metrics); err != nil {
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("batch aggregation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record batch")
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"success":      true,
		"metricsCount": len(batch.Metrics),
		"batchId":      batch.BatchID,
		"timestamp":    now.Format(time.RFC3339),
	})
}

// rejectBatch maps a validation failure onto the error taxonomy. Policy
// violations get their own warn-level log event so abuse monitoring can
// separate exfiltration attempts from broken clients; neither path logs any
// part of the payload.
func (a *App) rejectBatch(w http.ResponseWriter, r *http.Request, err error) {
	var v *domain.ViolationError
	if !errors.As(err, &v) {
		a.error(w, http.StatusBadRequest, "malformed_input", "invalid batch")
		return
	}

	switch {
	case errors.Is(err, domain.ErrPolicyViolation):
		a.Logger.Warn().
			Str("event", "policy_violation").
			Str("code", v.Code).
			Str("field", v.Field).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("batch rejected for raw-telemetry fields")
	default:
		a.Logger.Debug().
			Str("code", v.Code).
			Str("field", v.Field).
			Msg("batch rejected")
	}

	a.error(w, http.StatusBadRequest, v.Code, v.Detail)
}
