package fetch

import (
	"errors"
	"fmt"

	"tankobon/internal/services"
)

// UnavailableError reports a fragment the host says is permanently gone.
type UnavailableError struct {
	Fragment string
	URL      string
	Status   int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: fragment %s unavailable (%d) at %s", services.ErrFetch, e.Fragment, e.Status, e.URL)
}

// Is lets errors.Is match the fetch marker.
func (e *UnavailableError) Is(target error) bool {
	return target == services.ErrFetch
}

// Permanent reports whether err is a fragment the host will never serve.
func Permanent(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}
