package app

import (
	"fmt"
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Notice is one user-facing status message.
type Notice struct {
	Time    time.Time
	Level   Level
	Message string
}

// String formats the notice as "HH:MM:SS LEVEL message".
func (n Notice) String() string {
	return fmt.Sprintf("%s %-5s %s", n.Time.Format("15:04:05"), n.Level, n.Message)
}

// Notices keeps the most recent messages shown in the status area.
type Notices struct {
	// messages stores recent notices, oldest first
	messages []Notice

	// maxMessages is the maximum number of notices to keep
	maxMessages int

	// now is the clock, replaceable in tests
	now func() time.Time

	mu sync.Mutex
}

// NewNotices creates a notice buffer holding at most maxMessages entries.
func NewNotices(maxMessages int) *Notices {
	if maxMessages < 1 {
		maxMessages = 1
	}
	return &Notices{
		messages:    make([]Notice, 0, maxMessages),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Add records a notice with the specified level.
func (n *Notices) Add(level Level, format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, Notice{
		Time:    n.now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})

	// Trim old messages if we exceed max
	if len(n.messages) > n.maxMessages {
		n.messages = n.messages[len(n.messages)-n.maxMessages:]
	}
}

func (n *Notices) Debug(format string, args ...any) { n.Add(LevelDebug, format, args...) }
func (n *Notices) Info(format string, args ...any)  { n.Add(LevelInfo, format, args...) }
func (n *Notices) Warn(format string, args ...any)  { n.Add(LevelWarn, format, args...) }
func (n *Notices) Error(format string, args ...any) { n.Add(LevelError, format, args...) }

// Latest returns the newest notice.
func (n *Notices) Latest() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return Notice{}, false
	}
	return n.messages[len(n.messages)-1], true
}

// List returns a copy of the retained notices, oldest first.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.messages))
	copy(out, n.messages)
	return out
}

// Clear removes all notices.
func (n *Notices) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = n.messages[:0]
}
