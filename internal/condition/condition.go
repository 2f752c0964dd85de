// Package condition evaluates a workflow step's guard condition against a
// request's canonical payload and the creator's department. This is a
// pure, side-effect-free predicate — grounded on the same shape as the
// teacher's tagged-variant evaluators (vocabulary predicates), dispatched
// with a small switch rather than an open interface hierarchy.
package condition

import (
	"strconv"
	"strings"

	"github.com/c360studio/oaengine/internal/domain"
)

// Passes reports whether step's guard condition is satisfied. A step with
// no condition_kind passes unconditionally. An unknown condition_kind
// defaults to true (fail-safe: skipping an unknown gate would silently
// weaken approval controls — see design notes).
func Passes(step *domain.WorkflowVariantStep, payload *domain.Payload, creatorDept string) bool {
	kind := strings.TrimSpace(string(step.ConditionKind))
	if kind == "" {
		return true
	}
	value := strings.TrimSpace(step.ConditionValue)

	switch domain.ConditionKind(kind) {
	case domain.ConditionMinAmount:
		amount, ok := amountOf(payload)
		if !ok {
			return false
		}
		threshold, ok := parseFloat(value)
		if !ok {
			return false
		}
		return amount >= threshold

	case domain.ConditionMaxAmount:
		amount, ok := amountOf(payload)
		if !ok {
			return false
		}
		threshold, ok := parseFloat(value)
		if !ok {
			return false
		}
		return amount <= threshold

	case domain.ConditionMinDays:
		days, ok := daysOf(payload)
		if !ok {
			return false
		}
		threshold, ok := parseInt(value)
		if !ok {
			return false
		}
		return days >= threshold

	case domain.ConditionDeptIn:
		if creatorDept == "" {
			return false
		}
		allowed := splitLower(value)
		if len(allowed) == 0 {
			return false
		}
		return contains(allowed, strings.ToLower(strings.TrimSpace(creatorDept)))

	case domain.ConditionCategoryIn:
		if payload == nil {
			return false
		}
		allowed := splitLower(value)
		if len(allowed) == 0 {
			return false
		}
		return contains(allowed, strings.ToLower(strings.TrimSpace(payload.Category)))

	default:
		// Unknown condition_kind: fail-safe include. Do not reverse.
		return true
	}
}

func amountOf(p *domain.Payload) (float64, bool) {
	if p == nil || p.Amount == nil {
		return 0, false
	}
	return *p.Amount, true
}

func daysOf(p *domain.Payload) (int, bool) {
	if p == nil || p.Days == nil {
		return 0, false
	}
	return *p.Days, true
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	return i, err == nil
}

func splitLower(value string) []string {
	if value == "" {
		return nil
	}
	normalized := strings.NewReplacer(";", ",").Replace(value)
	var out []string
	for _, part := range strings.Split(normalized, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, needle string) bool {
	for _, v := range list {
		if v == needle {
			return true
		}
	}
	return false
}

// FindNextStep returns the earliest step with step_order > currentOrder
// (or the earliest step at all, if currentOrder is nil) whose condition
// passes. Returns nil if no step qualifies.
func FindNextStep(steps []*domain.WorkflowVariantStep, currentOrder *int, payload *domain.Payload, creatorDept string) *domain.WorkflowVariantStep {
	for _, s := range steps {
		if currentOrder != nil && s.StepOrder <= *currentOrder {
			continue
		}
		if Passes(s, payload, creatorDept) {
			return s
		}
	}
	return nil
}
