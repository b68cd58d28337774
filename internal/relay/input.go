package relay

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultDurationMinutes applies when a record omits "duration".
const DefaultDurationMinutes = 10

// Record is one caller-supplied channel request, as decoded from JSON.
//
// Fields stay raw until Validate so that numbers and numeric strings are
// both accepted, and so missing fields can be told apart from zero values.
//
//	{"pin": 17, "state": true, "duration": 5, "order": 1}
type Record struct {
	Pin      json.RawMessage `json:"pin"`
	State    json.RawMessage `json:"state"`
	Duration json.RawMessage `json:"duration,omitempty"`
	Order    json.RawMessage `json:"order,omitempty"`
}

// DecodeRequest parses a command-line request.
//
// arg is either base64-encoded JSON or raw JSON starting with "[".
// The decoded value must be a JSON array of objects.
func DecodeRequest(arg string) ([]Record, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}

	data := []byte(arg)
	if !strings.HasPrefix(arg, "[") {
		decoded, err := base64.StdEncoding.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding base64: %v", ErrInvalidRequest, err)
		}
		data = decoded
	}
	return ParseRecords(data)
}

// ParseRecords decodes a JSON array of records.
func ParseRecords(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: request must be a JSON list of pin objects: %v", ErrInvalidRequest, err)
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrInvalidRequest, i)
		}
		var rec Record
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidRequest, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Validate converts records into channel specs.
//
// Rules:
//   - the list must not be empty
//   - "pin" and "state" are required
//   - "pin" and "order" are integers (numeric strings accepted)
//   - "state" is a JSON boolean
//   - "duration" is in minutes, finite, in [0, MaxDurationMinutes], defaulting
//     to defaultMinutes
//   - "order" defaults to 0
//
// Errors wrap ErrInvalidRequest.
func Validate(records []Record, defaultMinutes float64) ([]ChannelSpec, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no pins given", ErrInvalidRequest)
	}

	specs := make([]ChannelSpec, 0, len(records))
	for i, rec := range records {
		if isAbsent(rec.Pin) || isAbsent(rec.State) {
			return nil, fmt.Errorf("%w: item %d must have 'pin' and 'state'", ErrInvalidRequest, i)
		}

		pin, err := parseInt(rec.Pin)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: pin must be an integer, got %s", ErrInvalidRequest, i, rec.Pin)
		}

		var state bool
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return nil, fmt.Errorf("%w: state must be boolean for pin %d", ErrInvalidRequest, pin)
		}

		minutes := defaultMinutes
		if !isAbsent(rec.Duration) {
			minutes, err = parseFloat(rec.Duration)
			if err != nil {
				return nil, fmt.Errorf("%w: duration must be a number for pin %d", ErrInvalidRequest, pin)
			}
		}
		if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 {
			return nil, fmt.Errorf("%w: duration must be a finite non-negative number for pin %d", ErrInvalidRequest, pin)
		}
		if minutes > MaxDurationMinutes {
			return nil, fmt.Errorf("%w: duration %g exceeds %g minutes for pin %d",
				ErrInvalidRequest, minutes, MaxDurationMinutes, pin)
		}

		order := 0
		if !isAbsent(rec.Order) {
			order, err = parseInt(rec.Order)
			if err != nil {
				return nil, fmt.Errorf("%w: order must be an integer for pin %d", ErrInvalidRequest, pin)
			}
		}

		specs = append(specs, ChannelSpec{
			Channel:      pin,
			TargetActive: state,
			Duration:     MinutesToDuration(minutes),
			Order:        order,
		})
	}
	return specs, nil
}

// MaxDurationMinutes is the longest hold a time.Duration can represent.
const MaxDurationMinutes = float64(math.MaxInt64 / int64(time.Minute))

// MinutesToDuration converts fractional minutes to a Duration.
// Callers keep minutes within [0, MaxDurationMinutes].
func MinutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// numberText returns the numeric text of a JSON number or numeric string.
func numberText(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch n := v.(type) {
	case json.Number:
		return n.String(), nil
	case string:
		return strings.TrimSpace(n), nil
	default:
		return "", fmt.Errorf("not a number: %s", raw)
	}
}

func parseInt(raw json.RawMessage) (int, error) {
	text, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	// 17.0 is accepted, 17.5 is not.
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %s", text)
	}
	return int(f), nil
}

func parseFloat(raw json.RawMessage) (float64, error) {
	text, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(text, 64)
}
