package mission

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// FieldError describes a single rejected field in a proposed contribution
// or mission definition.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError aggregates field errors. It unwraps to
// ErrInvalidContribution so callers can classify with errors.Is and pull
// the details out with errors.As.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid contribution: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidContribution }

// ValidateDelta checks a proposed contribution against the mission's
// requirements before any state moves. Every key in delta must exist in
// requirements, amounts must be non-negative, and at least one amount
// must be positive.
func ValidateDelta(delta, requirements Resources) error {
	var fields []FieldError

	if len(delta) == 0 {
		fields = append(fields, FieldError{Field: "delta", Reason: "must not be empty"})
	}

	keys := make([]string, 0, len(delta))
	for key := range delta {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	anyPositive := false
	for _, key := range keys {
		amount := delta[key]
		if _, ok := requirements[key]; !ok {
			fields = append(fields, FieldError{Field: key, Reason: "not a mission requirement"})
			continue
		}
		if amount < 0 {
			fields = append(fields, FieldError{Field: key, Reason: "must not be negative"})
			continue
		}
		if amount > 0 {
			anyPositive = true
		}
	}
	if len(delta) > 0 && !anyPositive && len(fields) == 0 {
		fields = append(fields, FieldError{Field: "delta", Reason: "must contribute at least one resource"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateAddition rejects delta keys whose amounts would overflow the
// int64 running total they are about to be merged into.
func ValidateAddition(total, delta Resources) error {
	var fields []FieldError

	keys := make([]string, 0, len(delta))
	for key := range delta {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		amount := delta[key]
		if amount > 0 && total[key] > math.MaxInt64-amount {
			fields = append(fields, FieldError{Field: key, Reason: "amount overflows the running total"})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateDefinition checks a mission definition at creation time:
// requirements must name at least one resource with a non-negative target,
// the deadline must be in the future, and the tier ladder must carry
// unique names and strictly ascending thresholds within [0, 1].
func ValidateDefinition(m *Mission, now time.Time) error {
	if len(m.Requirements) == 0 {
		return fmt.Errorf("%w: requirements must not be empty", ErrInvalidMission)
	}
	for key, required := range m.Requirements {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: blank resource key", ErrInvalidMission)
		}
		if required < 0 {
			return fmt.Errorf("%w: requirement %q must not be negative", ErrInvalidMission, key)
		}
	}
	if !m.EndsAt.After(now) {
		return fmt.Errorf("%w: ends_at must be in the future", ErrInvalidMission)
	}

	seen := make(map[string]struct{}, len(m.Tiers))
	prev := -1.0
	for _, t := range m.Tiers {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: blank tier name", ErrInvalidMission)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: duplicate tier %q", ErrInvalidMission, t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Threshold < 0 || t.Threshold > 1 {
			return fmt.Errorf("%w: tier %q threshold must be within [0, 1]", ErrInvalidMission, t.Name)
		}
		if t.Threshold <= prev {
			return fmt.Errorf("%w: tier thresholds must ascend", ErrInvalidMission)
		}
		prev = t.Threshold
	}
	return nil
}
