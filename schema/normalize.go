package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// legacyParamAliases maps field names sent by older clients to their current names.
var legacyParamAliases = map[string]string{
	"param_name": "name",
	"param_pos":  "position",
}

// NormalizeRequest trims the method and rewrites legacy parameter names.
// Current names win over legacy ones when both are present.
func NormalizeRequest(req CommandRequest) CommandRequest {
	req.Method = Method(strings.TrimSpace(string(req.Method)))
	if req.Params == nil {
		req.Params = Params{}
		return req
	}
	for legacy, current := range legacyParamAliases {
		value, ok := req.Params[legacy]
		if !ok {
			continue
		}
		delete(req.Params, legacy)
		if _, exists := req.Params[current]; exists {
			continue
		}
		if s, isString := value.(string); isString && s == "" {
			continue
		}
		req.Params[current] = value
	}
	return req
}

// Has reports whether the named field is present and non-null.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// String returns the named field as a trimmed string.
func (p Params) String(name string) (string, bool) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		return trimmed, trimmed != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Float returns the named field as a number. Numeric strings are accepted.
func (p Params) Float(name string) (float64, bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, true, fmt.Errorf("parameter '%s': %w", name, err)
	}
	return f, true, nil
}

// Vector returns the named field as a position. Accepts {"x","y","z"} objects
// (missing axes default to zero) and [x, y, z] arrays.
func (p Params) Vector(name string) (Vector3, bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return Vector3{}, false, nil
	}
	var out Vector3
	switch t := v.(type) {
	case map[string]any:
		axes := []struct {
			key string
			dst *float64
		}{{"x", &out.X}, {"y", &out.Y}, {"z", &out.Z}}
		for _, axis := range axes {
			raw, present := t[axis.key]
			if !present {
				raw, present = t[strings.ToUpper(axis.key)]
			}
			if !present || raw == nil {
				continue
			}
			f, err := toFloat(raw)
			if err != nil {
				return Vector3{}, true, fmt.Errorf("parameter '%s.%s': %w", name, axis.key, err)
			}
			*axis.dst = f
		}
	case []any:
		if len(t) != 3 {
			return Vector3{}, true, fmt.Errorf("parameter '%s': expected 3 components, got %d", name, len(t))
		}
		dst := []*float64{&out.X, &out.Y, &out.Z}
		for i, raw := range t {
			f, err := toFloat(raw)
			if err != nil {
				return Vector3{}, true, fmt.Errorf("parameter '%s[%d]': %w", name, i, err)
			}
			*dst[i] = f
		}
	case Vector3:
		out = t
	default:
		return Vector3{}, true, fmt.Errorf("parameter '%s': expected an object with x, y, z", name)
	}
	return out, true, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		f = parsed
	default:
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}
