// README: Lifecycle controller: jittered re-solicitation, re-entrancy guard and fruitless-round counting.
package agent

import (
	"math/rand"
	"time"
)

// Lifecycle is owned by one actor goroutine and is not safe for concurrent use.
type Lifecycle struct {
	period      time.Duration
	jitter      time.Duration
	maxAttempts int
	rng         *rand.Rand

	attempts int
	running  bool
}

func NewLifecycle(period, jitter time.Duration, maxAttempts int, rng *rand.Rand) *Lifecycle {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Lifecycle{period: period, jitter: jitter, maxAttempts: maxAttempts, rng: rng}
}

// NextDelay is the period plus a random share of the jitter.
func (l *Lifecycle) NextDelay() time.Duration {
	if l.jitter <= 0 {
		return l.period
	}
	return l.period + time.Duration(l.rng.Int63n(int64(l.jitter)))
}

// TryBegin claims the round slot; it fails while a round is running.
func (l *Lifecycle) TryBegin() bool {
	if l.running {
		return false
	}
	l.running = true
	return true
}

// End releases the round slot. Fruitless rounds count toward the limit.
func (l *Lifecycle) End(fruitless bool) {
	l.running = false
	if fruitless {
		l.attempts++
	}
}

func (l *Lifecycle) Running() bool { return l.running }

func (l *Lifecycle) Attempts() int { return l.attempts }

func (l *Lifecycle) Exhausted() bool { return l.attempts >= l.maxAttempts }
