package availability

import "errors"

// ValidationError marks a problem with the caller's own request (malformed
// range, bad timezone, duration below the rule minimum). Never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrRuleMissing is returned when a tenant has no default scheduling rule and
// the request did not name one.
var ErrRuleMissing = errors.New("no applicable scheduling rule for tenant")
