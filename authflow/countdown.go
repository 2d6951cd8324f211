package authflow

import (
	"sync"
	"time"
)

// countdown ticks from a starting value down to zero, calling onTick with
// each remaining value. It is owned by the controller and stopped on every
// exit from the otp step.
type countdown struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func startCountdown(seconds int, tick time.Duration, onTick func(remaining int)) *countdown {
	cd := &countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(cd.done)
		if seconds <= 0 {
			return
		}
		t := time.NewTicker(tick)
		defer t.Stop()
		for remaining := seconds; remaining > 0; {
			select {
			case <-cd.stop:
				return
			case <-t.C:
				remaining--
				onTick(remaining)
			}
		}
	}()
	return cd
}

// Stop cancels the countdown. It is safe to call more than once and does not
// wait for the ticking goroutine.
func (cd *countdown) Stop() {
	if cd == nil {
		return
	}
	cd.once.Do(func() {
		close(cd.stop)
	})
}

// Done is closed when the ticking goroutine has exited.
func (cd *countdown) Done() <-chan struct{} {
	return cd.done
}
