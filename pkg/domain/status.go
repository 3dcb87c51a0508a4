package domain

import (
	"fmt"
)

type Status int

const (
	// No restore task exists for the node yet
	StatusPending Status = iota

	// Restore task exists and has not reached a terminal task state
	StatusInProgress

	// Restore task finished, or the node has nothing to restore onto
	StatusComplete

	// Restore task reached a terminal failure state
	StatusError
)

var statusNames = map[Status]string{
	StatusPending:    "Pending",
	StatusInProgress: "InProgress",
	StatusComplete:   "Complete",
	StatusError:      "Error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}
