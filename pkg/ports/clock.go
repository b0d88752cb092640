package ports

import "time"

// Clock abstracts time so that backoff waits can be driven by tests.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}
