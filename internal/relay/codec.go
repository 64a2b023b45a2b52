package relay

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Message names on the wire.
const (
	ActionUpdate    = "eggtimer.timer.update"
	ActionFinished  = "eggtimer.timer.finished"
	ActionCancelled = "eggtimer.timer.cancelled"
)

// Envelope is the named payload form of a Message.
type Envelope struct {
	Action string `json:"action"`
	// Remaining is set for ActionUpdate only.
	Remaining *int `json:"remaining_seconds,omitempty"`
}

// Encode converts m into its envelope. Invalid messages encode to an empty action.
func Encode(m Message) Envelope {
	switch m.kind {
	case KindUpdate:
		rem := m.remaining
		return Envelope{Action: ActionUpdate, Remaining: &rem}
	case KindFinished:
		return Envelope{Action: ActionFinished}
	case KindCancelled:
		return Envelope{Action: ActionCancelled}
	default:
		return Envelope{}
	}
}

// Decode converts e back into a Message. It reports false for unknown actions.
// An update without a remaining field decodes as Update(0).
func Decode(e Envelope) (Message, bool) {
	switch e.Action {
	case ActionUpdate:
		rem := 0
		if e.Remaining != nil {
			rem = *e.Remaining
		}
		return Update(rem), true
	case ActionFinished:
		return Finished(), true
	case ActionCancelled:
		return Cancelled(), true
	default:
		return Message{}, false
	}
}

// MarshalMessage returns the JSON wire form of m.
func MarshalMessage(m Message) ([]byte, error) {
	e := Encode(m)
	if e.Action == "" {
		return nil, fmt.Errorf("relay: cannot encode invalid message")
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope parses one JSON frame. Unknown actions are not an error
// here; Decode filters them.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("relay: decode envelope: %w", err)
	}
	return e, nil
}

// Filter describes the message names a receiver registers for.
type Filter struct {
	actions []string
}

// NewFilter returns the filter for exactly the three timer messages.
func NewFilter() Filter {
	return Filter{actions: []string{ActionUpdate, ActionFinished, ActionCancelled}}
}

// Actions returns a copy of the registered names.
func (f Filter) Actions() []string { return slices.Clone(f.actions) }

func (f Filter) Matches(action string) bool { return slices.Contains(f.actions, action) }
