package scheduler

import "fmt"

// DeliveryError means the deliverer rejected a notification. The reminder's
// bookkeeping was not touched.
type DeliveryError struct {
	ReminderID string
	ShortCode  string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver reminder %s: %v", e.ShortCode, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TickError ends a tick early. Work committed before it is kept.
type TickError struct {
	Phase string
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick failed during %s: %v", e.Phase, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }
