// Package events decodes client behavioral signals into typed values.
//
// The vocabulary is open: types the aggregator does not know about decode to
// Other and are stored as-is.
package events

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	TypeIdleDetected       = "idle_detected"
	TypeFocusResumed       = "focus_resumed"
	TypeNudgeShown         = "nudge_shown"
	TypeSustainedAttention = "sustained_attention"
	TypeImmediateRefocus   = "immediate_refocus"
	TypeSessionFeedback    = "session_feedback"
)

// RefocusWindowSeconds is the inclusive upper bound for a focus_resumed to
// count as a refocus caused by the preceding nudge.
const RefocusWindowSeconds = 60.0

var ErrEmptyType = errors.New("event_type is required")

type Payload map[string]interface{}

// Event is one decoded signal. The concrete type tells the aggregator which
// rule applies.
type Event interface {
	Type() string
	Details() Payload
}

type IdleDetected struct{ Payload Payload }

type FocusResumed struct{ Payload Payload }

type NudgeShown struct {
	NudgeID string
	Payload Payload
}

type SessionFeedback struct {
	Rating  float64
	Payload Payload
}

type SustainedAttention struct {
	Duration float64
	Payload  Payload
}

type ImmediateRefocus struct {
	Latency float64
	Payload Payload
}

// Other carries any type outside the known vocabulary.
type Other struct {
	Name    string
	Payload Payload
}

func (IdleDetected) Type() string       { return TypeIdleDetected }
func (FocusResumed) Type() string       { return TypeFocusResumed }
func (NudgeShown) Type() string         { return TypeNudgeShown }
func (SessionFeedback) Type() string    { return TypeSessionFeedback }
func (SustainedAttention) Type() string { return TypeSustainedAttention }
func (ImmediateRefocus) Type() string   { return TypeImmediateRefocus }
func (e Other) Type() string            { return e.Name }

func (e IdleDetected) Details() Payload       { return e.Payload }
func (e FocusResumed) Details() Payload       { return e.Payload }
func (e NudgeShown) Details() Payload         { return e.Payload }
func (e SessionFeedback) Details() Payload    { return e.Payload }
func (e SustainedAttention) Details() Payload { return e.Payload }
func (e ImmediateRefocus) Details() Payload   { return e.Payload }
func (e Other) Details() Payload              { return e.Payload }

// Parse maps a raw type tag and payload onto the matching variant. Only an
// empty tag is rejected; malformed fields inside a known payload decode to
// their zero value.
func Parse(eventType string, details Payload) (Event, error) {
	name := strings.TrimSpace(eventType)
	if name == "" {
		return nil, ErrEmptyType
	}
	if details == nil {
		details = Payload{}
	}
	switch name {
	case TypeIdleDetected:
		return IdleDetected{Payload: details}, nil
	case TypeFocusResumed:
		return FocusResumed{Payload: details}, nil
	case TypeNudgeShown:
		return NudgeShown{NudgeID: details.String("nudge_id"), Payload: details}, nil
	case TypeSessionFeedback:
		return SessionFeedback{Rating: details.Number("rating"), Payload: details}, nil
	case TypeSustainedAttention:
		return SustainedAttention{Duration: details.Number("duration"), Payload: details}, nil
	case TypeImmediateRefocus:
		return ImmediateRefocus{Latency: details.Number("latency"), Payload: details}, nil
	default:
		return Other{Name: name, Payload: details}, nil
	}
}

// DecodePayload reads a stored JSON object. Anything that is not an object
// yields an empty payload.
func DecodePayload(raw []byte) Payload {
	if len(raw) == 0 {
		return Payload{}
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return Payload{}
	}
	return p
}

func (p Payload) Encode() json.RawMessage {
	if p == nil {
		return json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// String returns the value at key when it is a non-empty string.
func (p Payload) String(key string) string {
	value, ok := p[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// Number returns the value at key as a finite float. Numeric strings are
// accepted; anything else, including NaN and infinities, is 0.
func (p Payload) Number(key string) float64 {
	var value float64
	switch v := p[key].(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		value = parsed
	default:
		return 0
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
