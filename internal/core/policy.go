package core

import (
	"sync/atomic"
	"time"
)

// DelayPolicy holds the minimum delay between registration attempts.
// It is shared by every worker of a batch and may be changed while they run.
type DelayPolicy struct {
	min atomic.Int64
}

func NewDelayPolicy(min time.Duration) *DelayPolicy {
	p := &DelayPolicy{}
	p.SetMinDelay(min)
	return p
}

// MinDelay returns the current floor. A nil policy has no floor.
func (p *DelayPolicy) MinDelay() time.Duration {
	if p == nil {
		return 0
	}
	return time.Duration(p.min.Load())
}

func (p *DelayPolicy) SetMinDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.min.Store(int64(d))
}
