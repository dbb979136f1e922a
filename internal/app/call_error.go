package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type callErrorKind string

const (
	callTimedOut callErrorKind = "timeout"
	callCanceled callErrorKind = "canceled"
)

// callError is a contract read cut short by the command context. Phase names
// the call, e.g. "contract.active_doctors".
type callError struct {
	Phase    string
	Kind     callErrorKind
	Deadline time.Time
	Err      error
}

func (e *callError) Error() string {
	switch {
	case e.Kind == callCanceled:
		return fmt.Sprintf("%s canceled: %v", e.Phase, e.Err)
	case e.Deadline.IsZero():
		return fmt.Sprintf("%s timed out: %v", e.Phase, e.Err)
	default:
		return fmt.Sprintf("%s timed out (deadline %s): %v", e.Phase, e.Deadline.Format(time.RFC3339), e.Err)
	}
}

func (e *callError) Unwrap() error { return e.Err }

// annotateCallError wraps context errors from phase. Anything else, the
// contract's own failures included, passes through unchanged.
func annotateCallError(ctx context.Context, phase string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		ce := &callError{Phase: phase, Kind: callTimedOut, Err: err}
		if dl, ok := ctx.Deadline(); ok {
			ce.Deadline = dl.UTC()
		}
		return ce
	case errors.Is(err, context.Canceled):
		return &callError{Phase: phase, Kind: callCanceled, Err: err}
	}
	return err
}

// callErrorMeta is the error envelope meta for an annotated call, nil otherwise.
func callErrorMeta(err error) map[string]any {
	var ce *callError
	if !errors.As(err, &ce) {
		return nil
	}
	meta := map[string]any{"phase": ce.Phase, "kind": string(ce.Kind)}
	if !ce.Deadline.IsZero() {
		meta["deadline"] = ce.Deadline.Format(time.RFC3339)
	}
	return meta
}
