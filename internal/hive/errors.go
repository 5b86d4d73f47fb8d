// ABOUTME: Error types returned by the hive client
// ABOUTME: TransportError wraps network failures, non-2xx answers and an open breaker

package hive

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is wrapped when the breaker refuses a call.
var ErrCircuitOpen = errors.New("hive circuit open")

// TransportError reports a failed call to the dispatch service.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("hive %s: status %d: %s", e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("hive %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("hive %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a 401 from the hive.
func IsUnauthorized(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == 401
}
