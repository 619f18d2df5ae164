package core

import "errors"

// transientError marks a provider failure as retryable: timeouts, 5xx
// responses, rate limits. Drivers wrap such failures so the poller's backoff
// loop retries them instead of failing the resource.
type transientError struct {
	cause error
}

func (e transientError) Error() string {
	if e.cause == nil {
		return "core: transient provider error"
	}
	return "core: transient provider error: " + e.cause.Error()
}

func (e transientError) Unwrap() error { return e.cause }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{cause: err}
}

func IsTransient(err error) bool {
	var marker transientError
	return errors.As(err, &marker)
}
