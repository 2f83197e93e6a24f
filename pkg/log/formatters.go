package log

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// JSONFormatter formats log entries as JSON.
type JSONFormatter struct {
	TimestampFormat string
	EnableCaller    bool
}

// Format formats the entry as JSON.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+4)

	timestampFormat := time.RFC3339
	if f.TimestampFormat != "" {
		timestampFormat = f.TimestampFormat
	}
	data["timestamp"] = entry.Timestamp.Format(timestampFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if f.EnableCaller && entry.Caller != "" {
		data["caller"] = entry.Caller
	}

	for k, v := range entry.Fields {
		// Don't overwrite standard fields
		if k != "timestamp" && k != "level" && k != "message" && k != "caller" {
			data[k] = v
		}
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// TextFormatter formats log entries as human-readable text.
type TextFormatter struct {
	TimestampFormat string
	EnableCaller    bool
	DisableColors   bool
}

// NewTextFormatter creates a new TextFormatter with sensible defaults.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "2006-01-02T15:04:05.000"}
}

var (
	dim      = color.New(color.FgHiBlack).SprintFunc()
	fieldKey = color.New(color.FgCyan).SprintFunc()
)

// Format formats the entry as text.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	timestampFormat := "2006-01-02T15:04:05.000"
	if f.TimestampFormat != "" {
		timestampFormat = f.TimestampFormat
	}
	timestamp := entry.Timestamp.Format(timestampFormat)

	level := entry.Level.String()
	if !f.DisableColors {
		level = colorizeLevel(entry.Level)
		timestamp = dim(timestamp)
	}

	caller := ""
	if f.EnableCaller && entry.Caller != "" {
		caller = " (" + entry.Caller + ")"
		if !f.DisableColors {
			caller = " (" + dim(entry.Caller) + ")"
		}
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteByte(' ')
		if f.DisableColors {
			fmt.Fprintf(&b, "%s=%v", k, entry.Fields[k])
		} else {
			fmt.Fprintf(&b, "%s=%v", fieldKey(k), entry.Fields[k])
		}
	}

	return []byte(fmt.Sprintf("%s %s%s %s%s\n", timestamp, level, caller, entry.Message, b.String())), nil
}

func colorizeLevel(level Level) string {
	switch level {
	case DebugLevel:
		return color.BlueString("DBG")
	case InfoLevel:
		return color.GreenString("INF")
	case WarnLevel:
		return color.YellowString("WRN")
	case ErrorLevel:
		return color.RedString("ERR")
	case FatalLevel:
		return color.New(color.FgRed, color.Bold).Sprint("FTL")
	default:
		return level.String()
	}
}
