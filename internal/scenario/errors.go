package scenario

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput marks a task rejected before any navigation.
	ErrMissingInput = errors.New("missing input")
	// ErrElementNotFound marks a required UI element that never appeared.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoMatchingOption marks candidates that existed but none matched.
	ErrNoMatchingOption = errors.New("no matching option")
	// ErrPaymentURLNotFound marks a completed flow with no payment link.
	ErrPaymentURLNotFound = errors.New("payment url not found")
)

// StepError names the scenario step that could not complete. Kind carries
// the classification sentinel, Err the underlying fault; Msg is the
// user-facing message.
type StepError struct {
	Step string
	Kind error
	Err  error
	Msg  string
}

func (e *StepError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("шаг «%s»: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

func stepErrf(step string, kind error, format string, args ...any) error {
	return &StepError{Step: step, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
