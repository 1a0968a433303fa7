package progress

import "sync/atomic"

// Counter is the shared running total of bytes received across all
// fetchers. Increments are atomic so concurrent writers never lose
// updates, and Total never blocks them.
type Counter struct {
	total atomic.Int64
}

func (c *Counter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.total.Add(n)
}

func (c *Counter) Total() int64 {
	return c.total.Load()
}
