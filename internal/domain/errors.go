package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedInput  = errors.New("malformed input")
	ErrSchemaViolation = errors.New("schema violation")
	ErrPolicyViolation = errors.New("policy violation")
	ErrRateLimited     = errors.New("rate limited")
	ErrNotFound        = errors.New("not found")
)

// ViolationError carries a machine-readable code and the offending field for
// validation failures. It wraps one of the sentinel kinds above so callers can
// branch with errors.Is while responses stay specific.
type ViolationError struct {
	Kind   error
	Code   string
	Field  string
	Detail string
}

func (e *ViolationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Detail, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *ViolationError) Unwrap() error { return e.Kind }

// SchemaViolation reports a structurally invalid batch: wrong types, unknown
// metric names, out-of-range epsilon, oversized batches.
func SchemaViolation(code, field, detail string) error {
	return &ViolationError{Kind: ErrSchemaViolation, Code: code, Field: field, Detail: detail}
}

// PolicyViolation reports a batch that carries raw, disaggregated, or
// identity-bearing telemetry. Kept distinct from SchemaViolation so a broken
// client and an exfiltrating client stay distinguishable downstream.
func PolicyViolation(code, field, detail string) error {
	return &ViolationError{Kind: ErrPolicyViolation, Code: code, Field: field, Detail: detail}
}

// MalformedInput reports a body that could not be parsed at all.
func MalformedInput(detail string) error {
	return &ViolationError{Kind: ErrMalformedInput, Code: "malformed_input", Detail: detail}
}
