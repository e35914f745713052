package shop

import "errors"

// ErrProductUnavailable is returned at checkout for a product that is not currently
// sellable
var ErrProductUnavailable = errors.New("product is not available")

// validationError communicates rule violations back to HTTP handlers.
type validationError struct {
	message string
}

func (e validationError) Error() string { return e.message }

func newValidationError(msg string) error {
	return validationError{message: msg}
}

// IsValidation distinguishes bad input from business and infrastructure failures.
func IsValidation(err error) bool {
	var v validationError
	return errors.As(err, &v)
}
