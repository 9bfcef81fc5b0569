package control

import (
	"math"
	"sync/atomic"
	"time"
)

// MaxInterval is the longest interval, in seconds, that still fits in a
// time.Duration.
const MaxInterval int64 = math.MaxInt64 / int64(time.Second)

// State holds the sampling interval shared by the dispatcher, which writes
// it, and the scheduler, which reads it before every wait. It does not
// validate; callers only store values in 1..MaxInterval.
type State struct {
	interval atomic.Int64
}

func NewState(seconds int) *State {
	s := &State{}
	s.interval.Store(int64(seconds))
	return s
}

// Interval returns the current sampling interval in seconds.
func (s *State) Interval() int {
	return int(s.interval.Load())
}

func (s *State) SetInterval(seconds int) {
	s.interval.Store(int64(seconds))
}

// IntervalDuration returns the current interval as a time.Duration.
func (s *State) IntervalDuration() time.Duration {
	return time.Duration(s.interval.Load()) * time.Second
}
