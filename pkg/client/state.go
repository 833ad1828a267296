package client

import "fmt"

// Phase is the connection lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseReconnecting
	PhaseExhausted
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseExhausted:
		return "exhausted"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is an inspectable snapshot of the connection lifecycle.
// Attempt is only meaningful while reconnecting.
type State struct {
	Phase   Phase
	Attempt int
}

func (s State) String() string {
	if s.Phase == PhaseReconnecting {
		return fmt.Sprintf("reconnecting(attempt %d)", s.Attempt)
	}
	return s.Phase.String()
}
