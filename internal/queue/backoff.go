package queue

const (
	// DefaultBackoffBase is the delay after the first failure, in ms.
	DefaultBackoffBase int64 = 1000

	// DefaultBackoffMax caps the delay, in ms.
	DefaultBackoffMax int64 = 30000
)

// Backoff returns the retry delay in ms for an operation that had already
// failed `retries` times before the current failure: min(max, base*2^retries).
func Backoff(base, max int64, retries int) int64 {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retries; i++ {
		if delay >= max/2+1 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
