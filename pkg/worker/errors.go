package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWaitingWorker is returned by SkipWaiting when nothing is installed
	// and waiting.
	ErrNoWaitingWorker = errors.New("no waiting worker")

	// ErrNoController is returned when a control operation needs an active
	// worker and none is active yet.
	ErrNoController = errors.New("no active worker")

	// ErrInvalidState is returned for a lifecycle step taken out of order.
	ErrInvalidState = errors.New("invalid worker state")
)

// InstallError reports a failed install. The worker that returned it is
// redundant; the previously active worker keeps serving.
type InstallError struct {
	Generation string
	Err        error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Generation, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
