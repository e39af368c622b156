package raffle

import "fmt"

// State is the phase of the current raffle cycle
type State uint8

const (
	// Open accepts entries and may start a new cycle
	Open State = iota
	// Calculating is waiting on randomness for the cycle that was started
	Calculating
)

// validTransitions lists every transition the raffle can make.
// Entry does not change the state and is therefore not listed
var validTransitions = map[State][]State{
	Open:        {Calculating},
	Calculating: {Open},
}

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Calculating:
		return "CALCULATING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// canTransition returns whether moving from s to next is allowed
func (s State) canTransition(next State) bool {
	for _, to := range validTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// ParseState parses either the numeric or the named form of a state
func ParseState(str string) (State, error) {
	switch str {
	case "0", "OPEN", "open":
		return Open, nil
	case "1", "CALCULATING", "calculating":
		return Calculating, nil
	}
	return Open, fmt.Errorf("unknown raffle state %q", str)
}
