package task

import (
	"encoding/json"
	"math"

	gerrors "github.com/vinayprograms/taskparty/errors"
)

// Descriptor describes one task on a map.
type Descriptor struct {
	ID                      string `json:"id"`
	ClassID                 string `json:"type"`
	RequireConfirmationScan bool   `json:"requireConfirmationScan,omitempty"`
	Params                  Params `json:"params,omitempty"`
}

// Params holds kind-specific task parameters as decoded from JSON.
type Params map[string]interface{}

// Int returns the integer param key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, gerrors.Newf(gerrors.ErrCodeInvalidInput, "param %q must be an integer", key)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, gerrors.Newf(gerrors.ErrCodeInvalidInput, "param %q must be an integer", key)
		}
		return int(i), nil
	default:
		return 0, gerrors.Newf(gerrors.ErrCodeInvalidInput, "param %q must be an integer", key)
	}
}

// String returns the string param key, or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", gerrors.Newf(gerrors.ErrCodeInvalidInput, "param %q must be a string", key)
	}
	return s, nil
}

// Bool returns the boolean param key, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, gerrors.Newf(gerrors.ErrCodeInvalidInput, "param %q must be a boolean", key)
	}
	return b, nil
}
