package reminder

import (
	"fmt"

	"github.com/hray3182/NagLine/internal/models"
)

// NotFoundError reports a short code that does not resolve to any reminder.
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no reminder with code %q", e.Code)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransitionError is returned when a lifecycle command does not apply to the
// reminder's current status.
type TransitionError struct {
	Code   string
	Action string
	Status models.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s reminder %s: it is %s", e.Action, e.Code, e.Status)
}
