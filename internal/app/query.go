package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/timeparse"
	"github.com/shopspring/decimal"
)

type predicate struct {
	field string
	op    string
	value string
}

func parsePredicates(wheres []string) ([]predicate, error) {
	out := make([]predicate, 0, len(wheres))
	ops := []string{"==", "!=", "~", ">=", "<=", ">", "<"}
	for _, w := range wheres {
		s := strings.TrimSpace(w)
		if s == "" {
			continue
		}
		var op string
		idx := -1
		for _, candidate := range ops {
			if i := strings.Index(s, candidate); i > 0 && (idx < 0 || i < idx) {
				op = candidate
				idx = i
			}
		}
		if op == "" {
			return nil, fmt.Errorf("invalid where clause: %s", w)
		}
		field := strings.TrimSpace(s[:idx])
		val := strings.Trim(strings.TrimSpace(s[idx+len(op):]), "\"")
		if field == "" || val == "" {
			return nil, fmt.Errorf("invalid where clause: %s", w)
		}
		out = append(out, predicate{field: strings.ToLower(field), op: op, value: val})
	}
	return out, nil
}

// matcher evaluates predicates; now and loc resolve relative times.
type matcher struct {
	now time.Time
	loc *time.Location
}

func (m matcher) apply(items []contract.Appointment, preds []predicate) ([]contract.Appointment, error) {
	if len(preds) == 0 {
		return items, nil
	}
	filtered := make([]contract.Appointment, 0, len(items))
	for _, a := range items {
		ok, err := m.matchesAll(a, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func (m matcher) matchesAll(a contract.Appointment, preds []predicate) (bool, error) {
	for _, p := range preds {
		ok, err := m.matchesOne(a, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m matcher) matchesOne(a contract.Appointment, p predicate) (bool, error) {
	switch p.field {
	case "id":
		want, err := strconv.ParseUint(p.value, 10, 64)
		if err != nil {
			return false, fmt.Errorf("id predicate expects a number, got %q", p.value)
		}
		return compareOrdered(a.ID, want, p.op)
	case "status":
		return compareString(a.Status.String(), p.op, strings.NewReplacer("-", "", "_", "").Replace(p.value))
	case "doctor":
		return compareString(a.Doctor.Hex(), p.op, p.value)
	case "patient":
		return compareString(a.Patient.Hex(), p.op, p.value)
	case "description", "reason":
		return compareString(a.Description, p.op, p.value)
	case "fee":
		return compareFee(a, p.op, p.value)
	case "at", "datetime":
		want, err := timeparse.ParseDateTime(p.value, m.now, m.loc)
		if err != nil {
			return false, fmt.Errorf("time predicate: %w", err)
		}
		return compareTime(a.DateTime, p.op, want)
	default:
		return false, fmt.Errorf("unsupported field in --where: %s", p.field)
	}
}

func compareString(actual, op, expected string) (bool, error) {
	a := strings.ToLower(actual)
	e := strings.ToLower(expected)
	switch op {
	case "==":
		return a == e, nil
	case "!=":
		return a != e, nil
	case "~":
		return strings.Contains(a, e), nil
	default:
		return false, fmt.Errorf("operator %s not supported for string fields", op)
	}
}

// compareFee compares in ETH so 0.05 and 0.050 are equal.
func compareFee(a contract.Appointment, op, expected string) (bool, error) {
	want, err := decimal.NewFromString(expected)
	if err != nil {
		return false, fmt.Errorf("fee predicate expects an ETH amount, got %q", expected)
	}
	have, _ := decimal.NewFromString(format.ExactCurrency(a.Fee))
	return compareOrdered(have.Cmp(want), 0, op)
}

func compareOrdered[T int | uint64](actual, expected T, op string) (bool, error) {
	switch op {
	case "==":
		return actual == expected, nil
	case "!=":
		return actual != expected, nil
	case ">":
		return actual > expected, nil
	case ">=":
		return actual >= expected, nil
	case "<":
		return actual < expected, nil
	case "<=":
		return actual <= expected, nil
	default:
		return false, fmt.Errorf("operator %s not supported for numeric fields", op)
	}
}

func compareTime(actual time.Time, op string, expected time.Time) (bool, error) {
	switch op {
	case "==":
		return actual.Equal(expected), nil
	case "!=":
		return !actual.Equal(expected), nil
	case ">":
		return actual.After(expected), nil
	case ">=":
		return !actual.Before(expected), nil
	case "<":
		return actual.Before(expected), nil
	case "<=":
		return !actual.After(expected), nil
	default:
		return false, fmt.Errorf("operator %s not supported for time fields", op)
	}
}
