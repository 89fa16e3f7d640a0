// Package validate enforces the structural and policy constraints an incoming
// batch must satisfy before it may touch aggregate state. Validation is pure:
// nothing here mutates counters or logs request content.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"signals/internal/domain"
)

// Policy is the ingestion contract the validator enforces and the contract
// endpoint publishes. The zero value is not usable; construct with
// DefaultPolicy.
type Policy struct {
	Allowlist  []string
	EpsilonMin float64
	EpsilonMax float64
	MaxMetrics int

	allowed map[string]struct{}
}

// DefaultPolicy returns the served contract: the fixed metric allowlist, the
// closed epsilon interval, and the batch cardinality ceiling.
func DefaultPolicy() Policy {
	p := Policy{
		Allowlist: []string{
			"thumbs_down",
			"thumbs_up",
			"answer_dismissed",
			"retry_clicked",
			"copy_clicked",
			"session_abandoned",
		},
		EpsilonMin: 0.1,
		EpsilonMax: 2.0,
		MaxMetrics: 20,
	}
	p.allowed = make(map[string]struct{}, len(p.Allowlist))
	for _, name := range p.Allowlist {
		p.allowed[name] = struct{}{}
	}
	return p
}

// Allowed reports whether name is an accepted metric.
func (p Policy) Allowed(name string) bool {
	_, ok := p.allowed[name]
	return ok
}

// rawFieldDenylist names keys that signal raw, disaggregated, or
// identity-bearing telemetry. Any appearance, top-level or inside a metric
// object, rejects the whole batch as a policy violation. This check is
// defense-in-depth against buggy or hostile clients, separate from the
// allowlist so the two failure modes stay distinguishable.
var rawFieldDenylist = []string{
	"events",
	"rawEvents",
	"rawCount",
	"trueCount",
	"actualCount",
	"timestamps",
	"eventTimestamps",
	"userId",
	"userID",
	"deviceId",
	"sessionId",
	"clientId",
	"email",
	"ipAddress",
}

type wireMetric struct {
	Name       string   `json:"name"`
	NoisyCount *float64 `json:"noisyCount"`
	Epsilon    *float64 `json:"epsilon"`
}

type wireBatch struct {
	BatchID   string                     `json:"batchId"`
	Timestamp *float64                   `json:"timestamp"`
	Metrics   map[string]json.RawMessage `json:"metrics"`
}

// ParseBatch decodes and validates a request body against the policy. The
// returned batch is safe to fold into aggregate state without per-event
// inspection. Errors wrap domain.ErrMalformedInput, domain.ErrPolicyViolation,
// or domain.ErrSchemaViolation.
func (p Policy) ParseBatch(body []byte) (*domain.Batch, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, domain.MalformedInput("request body is not a JSON object")
	}

	// Denylist scan runs before schema checks so an exfiltration attempt is
	// reported as such even when the rest of the batch is broken too.
	if err := scanRawFields(top); err != nil {
		return nil, err
	}

	var wire wireBatch
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, domain.SchemaViolation("invalid_field_type", "", "field has wrong type")
	}
	if wire.BatchID == "" {
		return nil, domain.SchemaViolation("missing_field", "batchId", "batchId is required")
	}
	if wire.Timestamp == nil {
		return nil, domain.SchemaViolation("missing_field", "timestamp", "timestamp is required")
	}
	if len(wire.Metrics) == 0 {
		return nil, domain.SchemaViolation("empty_batch", "metrics", "batch must contain at least one metric")
	}
	if len(wire.Metrics) > p.MaxMetrics {
		return nil, domain.SchemaViolation("batch_too_large", "metrics",
			fmt.Sprintf("batch exceeds %d metrics", p.MaxMetrics))
	}

	batch := &domain.Batch{
		BatchID:   wire.BatchID,
		Timestamp: time.UnixMilli(int64(*wire.Timestamp)).UTC(),
		Metrics:   make([]domain.MetricContribution, 0, len(wire.Metrics)),
	}

	for name, raw := range wire.Metrics {
		if !p.Allowed(name) {
			return nil, domain.SchemaViolation("unknown_metric", name, "metric is not in the allowlist")
		}

		var entry map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, domain.SchemaViolation("invalid_metric", name, "metric entry must be an object")
		}
		if err := scanRawFields(entry); err != nil {
			return nil, err
		}

		var m wireMetric
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, domain.SchemaViolation("invalid_metric", name, "metric entry has wrong field types")
		}
		if m.Name != "" && m.Name != name {
			return nil, domain.SchemaViolation("metric_name_mismatch", name, "entry name does not match its key")
		}
		if m.NoisyCount == nil {
			return nil, domain.SchemaViolation("missing_field", name+".noisyCount", "noisyCount is required")
		}
		if *m.NoisyCount < 0 || *m.NoisyCount != math.Trunc(*m.NoisyCount) {
			return nil, domain.SchemaViolation("invalid_noisy_count", name+".noisyCount",
				"noisyCount must be a non-negative integer")
		}
		if m.Epsilon == nil {
			return nil, domain.SchemaViolation("missing_field", name+".epsilon", "epsilon is required")
		}
		if *m.Epsilon < p.EpsilonMin || *m.Epsilon > p.EpsilonMax {
			return nil, domain.SchemaViolation("epsilon_out_of_range", name+".epsilon",
				fmt.Sprintf("epsilon must lie in [%g, %g]", p.EpsilonMin, p.EpsilonMax))
		}

		batch.Metrics = append(batch.Metrics, domain.MetricContribution{
			Name:       name,
			NoisyCount: int64(*m.NoisyCount),
			Epsilon:    *m.Epsilon,
		})
	}

	return batch, nil
}

func scanRawFields(obj map[string]json.RawMessage) error {
	for _, banned := range rawFieldDenylist {
		for key := range obj {
			if strings.EqualFold(key, banned) {
				return domain.PolicyViolation("raw_telemetry_field", key,
					"raw or identity-bearing telemetry fields are not accepted")
			}
		}
	}
	return nil
}
