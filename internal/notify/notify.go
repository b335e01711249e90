// Package notify reports export outcomes to the user.
package notify

import (
	"sync"
	"time"

	"github.com/pwnholic/invsnap/internal"
)

const DefaultDuration = 3 * time.Second

type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

type Message struct {
	Kind Kind
	Text string
}

// Toast holds at most one message and clears it after Duration. A newer
// message replaces the current one and restarts the clock.
type Toast struct {
	Duration time.Duration

	mu      sync.Mutex
	current *Message
	timer   *time.Timer
	seq     uint64
}

func NewToast(d time.Duration) *Toast {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Toast{Duration: d}
}

func (t *Toast) Success(msg string) { t.show(KindSuccess, msg) }

func (t *Toast) Failure(msg string) { t.show(KindFailure, msg) }

func (t *Toast) show(kind Kind, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.current = &Message{Kind: kind, Text: msg}

	d := t.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.seq == seq {
			t.current = nil
			t.timer = nil
		}
	})
}

// Active returns the message on screen, if any.
func (t *Toast) Active() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Message{}, false
	}
	return *t.current, true
}

// LogNotifier writes outcomes to a logger, for runs without a screen.
type LogNotifier struct {
	Logger *internal.Logger
}

func (n LogNotifier) logger() *internal.Logger {
	if n.Logger == nil {
		return internal.GetDefaultLogger()
	}
	return n.Logger
}

func (n LogNotifier) Success(msg string) { n.logger().Success("%s", msg) }

func (n LogNotifier) Failure(msg string) { n.logger().Error("%s", msg) }

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Success(msg string) {
	for _, n := range m {
		n.Success(msg)
	}
}

func (m Multi) Failure(msg string) {
	for _, n := range m {
		n.Failure(msg)
	}
}
