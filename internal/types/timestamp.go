package types

import (
	"fmt"
	"strconv"
	"time"
)

// Timestamp wraps time.Time with the wire representation used by the board
// document: integer epoch milliseconds. A zero Timestamp marshals as 0 and 0
// or null unmarshal back to the zero value.
type Timestamp struct {
	time.Time
}

// Now returns the current wall-clock time truncated to millisecond precision,
// so that a value survives a marshal round-trip unchanged.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Millisecond)}
}

// At builds a Timestamp from a time.Time, truncating to wire precision.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// FromMillis converts an epoch-millisecond value into a Timestamp.
func FromMillis(ms int64) Timestamp {
	if ms == 0 {
		return Timestamp{}
	}
	return Timestamp{time.UnixMilli(ms).UTC()}
}

// Millis returns the wire representation.
func (t Timestamp) Millis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// MarshalJSON encodes the timestamp as epoch milliseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, t.Millis(), 10), nil
}

// UnmarshalJSON accepts an integer millisecond value, null, or a quoted
// integer left behind by older exports.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*t = Timestamp{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("decode timestamp %q: %w", string(data), err)
	}
	*t = FromMillis(ms)
	return nil
}
