package kademlia

import (
	"sync/atomic"
	"time"
)

// Clock is the external clock capability of spec §6: now() -> unix
// seconds, used to compare against Pong.Expiration.
type Clock interface {
	Now() int64
}

// SystemClock is the production Clock, backed by the wall clock.
type SystemClock struct{}

// Now returns the current unix time in seconds.
func (SystemClock) Now() int64 { return time.Now().Unix() }

// TestClock is a settable Clock for deterministic tests, in the spirit of
// common/mclock's Simulated clock but tracking wall-clock seconds since
// that is the unit Pong.Expiration is expressed in.
type TestClock struct {
	now atomic.Int64
}

// NewTestClock returns a TestClock initialized to t.
func NewTestClock(t int64) *TestClock {
	c := &TestClock{}
	c.now.Store(t)
	return c
}

// Now returns the clock's current value.
func (c *TestClock) Now() int64 { return c.now.Load() }

// Set pins the clock to t.
func (c *TestClock) Set(t int64) { c.now.Store(t) }

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) { c.now.Add(int64(d / time.Second)) }
