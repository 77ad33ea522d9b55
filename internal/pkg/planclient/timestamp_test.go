package planclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		raw   string
		valid bool
		want  time.Time
	}{
		{"rfc3339", "2024-01-01T00:00:00Z", true, want},
		{"rfc3339 offset", "2024-01-01T01:00:00+01:00", true, want},
		{"fractional", "2024-01-01T00:00:00.000Z", true, want},
		{"no zone", "2024-01-01T00:00:00", true, want},
		{"date only", "2024-01-01", true, want},
		{"epoch seconds", "1704067200", true, want},
		{"epoch millis", "1704067200000", true, want},
		{"empty", "  ", false, time.Time{}},
		{"garbage", "next tuesday", false, time.Time{}},
		{"zero epoch", "0", false, time.Time{}},
		{"negative epoch", "-5", false, time.Time{}},
		{"nan", "NaN", false, time.Time{}},
		{"infinity", "Infinity", false, time.Time{}},
		{"negative infinity", "-Inf", false, time.Time{}},
		{"huge epoch", "1e30", false, time.Time{}},
		{"just past max millis", "1000000000000001", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ParseTimestamp(tt.raw)
			assert.Equal(t, tt.valid, ts.Valid)
			if tt.valid {
				assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
			}
		})
	}
}

func TestTimestampUnmarshalMixedPayload(t *testing.T) {
	var v struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
		C Timestamp `json:"c"`
		D Timestamp `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a":"2024-01-31T00:00:00Z","b":1706659200,"c":null,"d":1706659200000}`), &v)
	require.NoError(t, err)

	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.True(t, end.Equal(v.A.Time))
	assert.True(t, end.Equal(v.B.Time))
	assert.False(t, v.C.Valid)
	assert.Nil(t, v.C.Ptr())
	assert.True(t, end.Equal(v.D.Time))
}

func TestTimestampUnmarshalRejectsOutOfRangeNumbers(t *testing.T) {
	var v struct {
		End Timestamp `json:"endsAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"endsAt":1e30}`), &v))
	assert.False(t, v.End.Valid)
	assert.Nil(t, v.End.Ptr())
}
