package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Conflict names one participant whose time is already taken and where the
// clash came from.
type Conflict struct {
	PersonID string   `json:"person_id"`
	Sources  []string `json:"sources,omitempty"`
}

// ConflictError blocks a booking. Soft (advisory) conflicts are returned as
// data, never as an error.
type ConflictError struct {
	Msg       string
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return e.Msg
	}
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.PersonID)
	}
	return fmt.Sprintf("%s: %s", e.Msg, strings.Join(ids, ", "))
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
