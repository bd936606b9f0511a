package client

import "sync"

// SequenceCounter produces connected message sequence numbers in
// [start, stop]. Next returns the current value and then advances, wrapping
// to start after stop.
type SequenceCounter struct {
	mu    sync.Mutex
	start uint16
	stop  uint16
	value uint16
}

// NewSequenceCounter returns a counter starting at start. A stop below start
// is raised to start.
func NewSequenceCounter(start, stop uint16) *SequenceCounter {
	if stop < start {
		stop = start
	}
	return &SequenceCounter{start: start, stop: stop, value: start}
}

// DefaultSequenceCounter counts 1..65535.
func DefaultSequenceCounter() *SequenceCounter {
	return NewSequenceCounter(1, 0xFFFF)
}

// Next returns the current value and advances.
func (c *SequenceCounter) Next() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.value
	if c.value >= c.stop {
		c.value = c.start
	} else {
		c.value++
	}
	return v
}

// Current returns the value the next call to Next will return.
func (c *SequenceCounter) Current() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
