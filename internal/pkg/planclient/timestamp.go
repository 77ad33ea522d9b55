package planclient

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds:
// 1e11 seconds is the year 5138, 1e11 ms is 1973.
const epochMillisThreshold = 1e11

// maxEpochMillis (about the year 33658) bounds numeric input; anything
// larger would overflow time.UnixMilli into a nonsense date.
const maxEpochMillis = 1e15

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp accepts ISO-8601 strings, epoch seconds and epoch milliseconds.
// Null, empty and unparsable values leave it unset.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ParseTimestamp(s)
		return nil
	}
	*t = ParseTimestamp(string(b))
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Ptr returns nil for an unset timestamp.
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func ParseTimestamp(raw string) Timestamp {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Timestamp{}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(n)
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: ts.UTC(), Valid: true}
		}
	}
	return Timestamp{}
}

func fromEpoch(n float64) Timestamp {
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return Timestamp{}
	}
	if n < epochMillisThreshold {
		n *= 1000
	}
	if n > maxEpochMillis {
		return Timestamp{}
	}
	return Timestamp{Time: time.UnixMilli(int64(n)).UTC(), Valid: true}
}
