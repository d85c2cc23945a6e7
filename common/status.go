package common

//go:generate go run github.com/dmarkham/enumer -json -sql -type Status -trimprefix Status

// Status of a download task or of an inventory entry
type Status int

const (
	StatusNEW Status = iota
	StatusPENDING
	StatusINPROGRESS
	StatusDONE
	StatusFAILED
)

// Terminal returns true if no further transition is allowed from the status
func (s Status) Terminal() bool {
	return s == StatusDONE || s == StatusFAILED
}

// CanTransition returns true if the status is allowed to move to next.
// Statuses only move forward: NEW -> PENDING -> INPROGRESS -> {DONE, FAILED}.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next > s
}

func (s Status) Color() string {
	switch s {
	case StatusNEW:
		return "gray"
	case StatusPENDING:
		return "blue"
	case StatusINPROGRESS:
		return "orange"
	case StatusDONE:
		return "green"
	case StatusFAILED:
		return "red"
	}
	return "white"
}
