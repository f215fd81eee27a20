package registry

import (
	"sync"

	"github.com/Elore26/assistant/internal/types"
)

// DefaultLogCapacity bounds the in-memory execution log.
const DefaultLogCapacity = 100

// ExecutionLog is a fixed-capacity ring buffer of tool executions. Once
// full, new entries overwrite the oldest. It bounds memory in a long-lived
// process regardless of how many tools run.
type ExecutionLog struct {
	mu   sync.RWMutex
	buf  []types.ToolExecution
	pos  int
	full bool
}

// NewExecutionLog creates a log with the given capacity.
func NewExecutionLog(capacity int) *ExecutionLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ExecutionLog{buf: make([]types.ToolExecution, capacity)}
}

// Append records an execution.
func (l *ExecutionLog) Append(e types.ToolExecution) {
	l.mu.Lock()
	l.buf[l.pos] = e
	l.pos = (l.pos + 1) % len(l.buf)
	if !l.full && l.pos == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Len returns the number of stored entries.
func (l *ExecutionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.buf)
	}
	return l.pos
}

// Recent returns up to n entries, newest first.
func (l *ExecutionLog) Recent(n int) []types.ToolExecution {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := l.pos
	if l.full {
		count = len(l.buf)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]types.ToolExecution, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.pos - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}
