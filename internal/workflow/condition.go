package workflow

import (
	"encoding/json"
	"reflect"

	"github.com/moxworks/auditflow/internal/models"
)

// CreatorContext carries the creator's organizational coordinates for
// condition evaluation and step materialization.
type CreatorContext struct {
	DepartmentID *int64
	PositionID   *int64
}

// CreatorOf builds the context from a profile.
func CreatorOf(p *models.Profile) CreatorContext {
	return CreatorContext{DepartmentID: p.DepartmentID, PositionID: p.PositionID}
}

// EvaluateConditions reports whether all conditions hold against the payload
// (logical AND; an empty list matches unconditionally). Conditions fail
// closed: a missing prop, an unknown comparator or a non-numeric operand in
// an ordering comparison makes the condition false rather than erroring.
func EvaluateConditions(conds []models.Condition, payload map[string]interface{}, creator CreatorContext) bool {
	for _, cond := range conds {
		if !evaluateCondition(cond, payload, creator) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond models.Condition, payload map[string]interface{}, creator CreatorContext) bool {
	if cond.Prop == models.PropCreator {
		return matchCreator(cond.Value, creator)
	}

	actual, ok := payload[cond.Prop]
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OpEq:
		if members, ok := cond.Value.([]interface{}); ok {
			for _, m := range members {
				if looseEqual(actual, m) {
					return true
				}
			}
			return false
		}
		return looseEqual(actual, cond.Value)
	case models.OpLt, models.OpLte, models.OpGt, models.OpGte:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		if !aok || !bok {
			return false
		}
		switch cond.Operator {
		case models.OpLt:
			return a < b
		case models.OpLte:
			return a <= b
		case models.OpGt:
			return a > b
		default:
			return a >= b
		}
	default:
		return false
	}
}

// matchCreator treats the condition value as an object whose present keys
// ("department", "position") must all equal the creator's ids.
func matchCreator(value interface{}, creator CreatorContext) bool {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return false
	}

	if want, present := obj["department"]; present {
		if creator.DepartmentID == nil || !idEqual(want, *creator.DepartmentID) {
			return false
		}
	}
	if want, present := obj["position"]; present {
		if creator.PositionID == nil || !idEqual(want, *creator.PositionID) {
			return false
		}
	}
	return true
}

func idEqual(want interface{}, got int64) bool {
	f, ok := toFloat(want)
	return ok && f == float64(got)
}

// looseEqual compares numerically when both sides are numbers and falls back
// to deep equality otherwise, so 5 and 5.0 match regardless of JSON decoding.
func looseEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
