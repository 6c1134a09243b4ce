package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// timestampFormat is the wall-clock format used by both formatters.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// TextFormatter renders entries as a single human-readable line:
//
//	2025-02-03T10:04:05.123Z INFO [server] server started http=:8080
type TextFormatter struct {
	// DisableTimestamp omits the leading timestamp (useful in tests).
	DisableTimestamp bool
}

// Format renders the entry as text.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		buf.WriteString(ts.Format(timestampFormat))
		buf.WriteByte(' ')
	}

	buf.WriteString(entry.Level.String())

	if c, ok := entry.Fields[ComponentKey]; ok {
		fmt.Fprintf(&buf, " [%v]", c)
	}

	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		if k == ComponentKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
	}

	if entry.Error != nil {
		fmt.Fprintf(&buf, " error=%v", entry.Error)
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct{}

// Format renders the entry as JSON.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		data[k] = v
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	data["ts"] = ts.Format(timestampFormat)
	data["level"] = entry.Level.String()
	data["msg"] = entry.Message
	if entry.Caller != "" {
		data["caller"] = entry.Caller
	}
	if entry.Error != nil {
		data["error"] = entry.Error.Error()
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
