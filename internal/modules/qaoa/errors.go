package qaoa

import "fmt"

// AllBackendsExhaustedError means one iteration failed on every candidate in
// the fallback plan without any fatal classification. With the reference
// sampler terminating every plan this indicates a configuration problem, but
// the loop still surfaces it precisely rather than spinning.
type AllBackendsExhaustedError struct {
	Iteration int
	Attempts  int
	LastErr   error
}

// Error implements the error interface
func (e *AllBackendsExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("iteration %d exhausted all %d backend candidates: %v", e.Iteration, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("iteration %d exhausted all %d backend candidates", e.Iteration, e.Attempts)
}

// Unwrap returns the last attempt's error
func (e *AllBackendsExhaustedError) Unwrap() error {
	return e.LastErr
}
