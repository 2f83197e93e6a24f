package log

import (
	"context"
	"strings"
	"sync"
)

// TestEntry represents a captured log entry for testing
type TestEntry struct {
	Level   Level
	Message string
	Fields  []Field
}

// TestLogger is a Logger implementation for testing that captures logs
// without producing output and provides methods to verify logging behavior.
// Child loggers share the parent's entry buffer.
type TestLogger struct {
	sink   *testSink
	fields []Field
	level  Level
}

type testSink struct {
	mu      sync.Mutex
	entries []TestEntry
}

// NewTestLogger creates a new TestLogger for use in unit tests
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &testSink{}, level: DebugLevel}
}

// GetEntries returns all captured log entries
func (l *TestLogger) GetEntries() []TestEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	result := make([]TestEntry, len(l.sink.entries))
	copy(result, l.sink.entries)
	return result
}

// ClearEntries clears all captured log entries
func (l *TestLogger) ClearEntries() {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = nil
}

func (l *TestLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *TestLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *TestLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *TestLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }
func (l *TestLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields) }

func (l *TestLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, TestEntry{Level: level, Message: msg, Fields: all})
	l.sink.mu.Unlock()
}

func (l *TestLogger) With(fields ...Field) Logger {
	child := &TestLogger{sink: l.sink, level: l.level}
	child.fields = append(append(child.fields, l.fields...), fields...)
	return child
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With(Err(err))
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	fields := ContextExtractor(ctx)
	out := make([]Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, F(k, v))
	}
	return l.With(out...)
}

func (l *TestLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *TestLogger) SetLevel(level Level) { l.level = level }
func (l *TestLogger) GetLevel() Level      { return l.level }

// AssertLogged reports whether an entry at level contains the message fragment.
func (l *TestLogger) AssertLogged(level Level, containsMessage string) bool {
	for _, e := range l.GetEntries() {
		if e.Level == level && strings.Contains(e.Message, containsMessage) {
			return true
		}
	}
	return false
}

// AssertLoggedWithField is AssertLogged plus a field equality check.
func (l *TestLogger) AssertLoggedWithField(level Level, containsMessage string, key string, value interface{}) bool {
	for _, e := range l.GetEntries() {
		if e.Level != level || !strings.Contains(e.Message, containsMessage) {
			continue
		}
		for _, f := range e.Fields {
			if f.Key == key && f.Value == value {
				return true
			}
		}
	}
	return false
}
