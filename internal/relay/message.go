// Package relay carries countdown notifications across a component boundary.
//
// The sending side encodes listener callbacks into named Envelopes; the
// receiving side decodes them back into the same callbacks. Only the three
// names listed by NewFilter are understood; anything else is ignored.
package relay

import (
	"fmt"

	"eggtimer/internal/countdown"
)

type Kind int

const (
	KindUpdate Kind = iota + 1
	KindFinished
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindFinished:
		return "finished"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Message is one timer notification. The zero value is invalid; build it with
// Update, Finished or Cancelled.
type Message struct {
	kind      Kind
	remaining int
}

func Update(remaining int) Message { return Message{kind: KindUpdate, remaining: remaining} }
func Finished() Message            { return Message{kind: KindFinished} }
func Cancelled() Message           { return Message{kind: KindCancelled} }

func (m Message) Kind() Kind { return m.kind }

// Remaining is only meaningful for KindUpdate.
func (m Message) Remaining() int { return m.remaining }

func (m Message) String() string {
	if m.kind == KindUpdate {
		return fmt.Sprintf("update(%d)", m.remaining)
	}
	return m.kind.String()
}

// Dispatch invokes the listener callback matching m. It reports false for an
// invalid message.
func (m Message) Dispatch(l countdown.Listener) bool {
	switch m.kind {
	case KindUpdate:
		l.OnTimerUpdate(m.remaining)
	case KindFinished:
		l.OnTimerFinished()
	case KindCancelled:
		l.OnTimerCancelled()
	default:
		return false
	}
	return true
}
