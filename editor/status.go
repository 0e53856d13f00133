package editor

import (
	"sync"
	"time"
)

// StatusKind distinguishes success feedback from failures.
type StatusKind string

const (
	StatusInfo  StatusKind = "info"
	StatusError StatusKind = "error"
)

// Status is one transient user-visible message.
type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`
}

// statusLine holds the current message and clears it after a fixed TTL.
// Reads may come from a different goroutine than the session (the HTTP
// surface polls it), hence the mutex even though sessions themselves are
// single-threaded.
type statusLine struct {
	mu    sync.Mutex
	cur   *Status
	ttl   time.Duration
	timer *time.Timer
}

func newStatusLine(ttl time.Duration) *statusLine {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &statusLine{ttl: ttl}
}

func (l *statusLine) setInfo(msg string)  { l.set(Status{Kind: StatusInfo, Message: msg}) }
func (l *statusLine) setError(msg string) { l.set(Status{Kind: StatusError, Message: msg}) }

func (l *statusLine) set(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur = &s
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.ttl, l.clear)
}

func (l *statusLine) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur = nil
}

func (l *statusLine) get() (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return Status{}, false
	}
	return *l.cur, true
}
