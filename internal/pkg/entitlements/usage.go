package entitlements

import "math"

// WarningPercent is the usage share at which a meter turns to warning.
const WarningPercent = 80

type UsageState string

const (
	UsageOK        UsageState = "ok"
	UsageWarning   UsageState = "warning"
	UsageExhausted UsageState = "exhausted"
)

type Meter struct {
	Key       string     `json:"key"`
	Used      int64      `json:"used"`
	Limit     int64      `json:"limit"`
	Remaining int64      `json:"remaining"`
	Percent   int        `json:"percent"`
	Unlimited bool       `json:"unlimited"`
	State     UsageState `json:"state"`
}

// MeterFor compares used units against a limit; limit <= 0 is unlimited.
func MeterFor(key string, used, limit int64) Meter {
	if used < 0 {
		used = 0
	}
	m := Meter{Key: key, Used: used, Limit: limit, State: UsageOK}
	if limit <= 0 {
		m.Limit = 0
		m.Unlimited = true
		return m
	}

	if used < limit {
		m.Remaining = limit - used
	}
	m.Percent = int(math.Round(float64(used) / float64(limit) * 100))
	if m.Percent > 100 {
		m.Percent = 100
	}

	switch {
	case used >= limit:
		m.State = UsageExhausted
	case m.Percent >= WarningPercent:
		m.State = UsageWarning
	}
	return m
}

// Allows reports whether amount more units fit into the meter.
func (m Meter) Allows(amount int64) bool {
	return m.Unlimited || m.Used+amount <= m.Limit
}
