package aspects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gorm.io/datatypes"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
)

// MaxSafeInteger bounds NUMERIC ranges to the integers a float64 holds exactly.
const MaxSafeInteger = 1<<53 - 1

const (
	minPercent = 0
	maxPercent = 100
)

// Range is an inclusive [low, high] pair.
type Range [2]float64

func (r Range) Contains(v float64) bool { return v >= r[0] && v <= r[1] }

// ParseRange applies the structural checks shared by every value type: a
// two-element array of numbers in ascending order.
func ParseRange(status string, raw datatypes.JSON) (Range, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return Range{}, apierr.Newf(apierr.InvalidRangeValue, "%s range must be an array of two numbers", status)
	}
	if len(elems) != 2 {
		return Range{}, apierr.Newf(apierr.InvalidRangeSize, "%s range must have exactly 2 elements, got %d", status, len(elems))
	}
	var out Range
	for i, e := range elems {
		switch v := e.(type) {
		case []any:
			return Range{}, apierr.Newf(apierr.InvalidRangeValue, "%s range element %d must not be an array", status, i)
		case json.Number:
			f, err := v.Float64()
			if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				return Range{}, apierr.Newf(apierr.InvalidRangeValue, "%s range element %d is not a finite number", status, i)
			}
			out[i] = f
		default:
			return Range{}, apierr.Newf(apierr.InvalidRangeValue, "%s range element %d must be numeric", status, i)
		}
	}
	if out[0] > out[1] {
		return Range{}, apierr.Newf(apierr.InvalidRangeValue, "%s range lower bound %v exceeds upper bound %v", status, out[0], out[1])
	}
	return out, nil
}

// ValidateRanges checks every assigned status range of a against the rules of
// its value type.
func ValidateRanges(vt monitor.ValueType, a *monitor.Aspect) error {
	type assigned struct {
		status string
		rng    Range
	}
	var set []assigned
	for _, slot := range a.RangeSlots() {
		if !slot.Assigned() {
			continue
		}
		r, err := ParseRange(slot.Status, slot.Raw)
		if err != nil {
			return err
		}
		if err := checkDomain(vt, slot.Status, r); err != nil {
			return err
		}
		set = append(set, assigned{status: slot.Status, rng: r})
	}

	if vt != monitor.ValueTypeBoolean {
		return nil
	}
	if len(set) > 2 {
		return apierr.Newf(apierr.InvalidAspectStatusRange, "a BOOLEAN aspect may assign at most 2 ranges, got %d", len(set))
	}
	if len(set) == 2 && set[0].rng == set[1].rng {
		return apierr.Newf(apierr.InvalidAspectStatusRange, "%s and %s ranges must differ", set[0].status, set[1].status)
	}
	return nil
}

func checkDomain(vt monitor.ValueType, status string, r Range) error {
	switch vt {
	case monitor.ValueTypeBoolean:
		if r != (Range{0, 0}) && r != (Range{1, 1}) {
			return apierr.Newf(apierr.InvalidAspectStatusRange, "%s range of a BOOLEAN aspect must be [0,0] or [1,1]", status)
		}
	case monitor.ValueTypeNumeric:
		for _, b := range r {
			if b < -MaxSafeInteger || b > MaxSafeInteger {
				return apierr.Newf(apierr.InvalidAspectStatusRange,
					"%s range bound %v is outside [%d, %d]", status, b, -MaxSafeInteger, MaxSafeInteger)
			}
		}
	case monitor.ValueTypePercent:
		for _, b := range r {
			if b < minPercent || b > maxPercent {
				return apierr.Newf(apierr.InvalidAspectStatusRange, "%s range bound %v is outside [0, 100]", status, b)
			}
		}
	default:
		return apierr.Newf(apierr.ValidationError, "unknown value type %q", vt)
	}
	return nil
}

// ClampNumericRange pulls out-of-domain NUMERIC bounds back to the safe
// integer limits. It is used only when repairing stored data.
func ClampNumericRange(raw datatypes.JSON) (datatypes.JSON, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var elems []json.Number
	if err := dec.Decode(&elems); err != nil {
		return raw, false, fmt.Errorf("decode range: %w", err)
	}
	changed := false
	out := make([]float64, len(elems))
	for i, n := range elems {
		f, err := n.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return raw, false, fmt.Errorf("decode range bound: %w", err)
		}
		switch {
		case f > MaxSafeInteger:
			f, changed = MaxSafeInteger, true
		case f < -MaxSafeInteger:
			f, changed = -MaxSafeInteger, true
		}
		out[i] = f
	}
	if !changed {
		return raw, false, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return raw, false, err
	}
	return datatypes.JSON(b), true, nil
}
